package fileutils_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/vaultdrive/vaultdrive/internal/fileutils"
)

var _ = Describe("SplitNameExt", func() {
	It("splits a stem and extension", func() {
		stem, ext := fileutils.SplitNameExt("sample-object.txt")
		Expect(stem).To(Equal("sample-object"))
		Expect(ext).To(Equal("txt"))
	})

	It("returns an empty extension for a name with none", func() {
		stem, ext := fileutils.SplitNameExt("sample-object")
		Expect(stem).To(Equal("sample-object"))
		Expect(ext).To(Equal(""))
	})
})

var _ = Describe("WithSuffix", func() {
	It("inserts the suffix before the extension", func() {
		Expect(fileutils.WithSuffix("photo.jpg", " (restored)")).To(Equal("photo (restored).jpg"))
	})

	It("appends the suffix directly when there is no extension", func() {
		Expect(fileutils.WithSuffix("Documents", " (restored)")).To(Equal("Documents (restored)"))
	})
})
