package leaselock_test

import (
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func TestLeaselock(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "leaselock suite")
}
