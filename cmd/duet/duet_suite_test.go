package duetcmder_test

import (
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func TestDuetCmd(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Duet Command Suite")
}
