package iometer_test

import (
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func TestIometer(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "iometer suite")
}
