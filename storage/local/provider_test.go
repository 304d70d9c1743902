package local_test

import (
	"bytes"
	"context"
	"io"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/vaultdrive/vaultdrive/storage"
	"github.com/vaultdrive/vaultdrive/storage/local"
	"github.com/vaultdrive/vaultdrive/xfererr"
)

var _ = Describe("Provider", func() {
	var (
		provider *local.Provider
		err      error
		ownerID  string
	)

	BeforeEach(func() {
		provider, err = local.NewProvider(tempDir+"/"+uuid.NewString(), 0, GinkgoLogr)
		Expect(err).ToNot(HaveOccurred())
		ownerID = uuid.NewString()
	})

	Describe("Save and GetResponse", func() {
		It("round-trips the full object", func(ctx context.Context) {
			fileID := uuid.NewString()
			content := gofakeit.SentenceSimple()

			n, err := provider.Save(ctx, ownerID, fileID, bytes.NewReader([]byte(content)), 1<<20)
			Expect(err).ToNot(HaveOccurred())
			Expect(n).To(BeEquivalentTo(len(content)))

			obj, err := provider.GetResponse(ctx, ownerID, fileID, nil)
			Expect(err).ToNot(HaveOccurred())
			defer obj.Reader.Close()
			Expect(obj.ContentLength).To(BeEquivalentTo(len(content)))

			data, err := io.ReadAll(obj.Reader)
			Expect(err).ToNot(HaveOccurred())
			Expect(string(data)).To(Equal(content))
		}, NodeTimeout(10*time.Second))

		It("serves a byte range", func(ctx context.Context) {
			fileID := uuid.NewString()
			content := "0123456789"
			_, err := provider.Save(ctx, ownerID, fileID, bytes.NewReader([]byte(content)), 1<<20)
			Expect(err).ToNot(HaveOccurred())

			obj, err := provider.GetResponse(ctx, ownerID, fileID, &storage.Range{Start: 2, End: 4})
			Expect(err).ToNot(HaveOccurred())
			defer obj.Reader.Close()
			Expect(obj.ContentLength).To(BeEquivalentTo(3))

			data, err := io.ReadAll(obj.Reader)
			Expect(err).ToNot(HaveOccurred())
			Expect(string(data)).To(Equal("234"))
		}, NodeTimeout(10*time.Second))

		It("serves an open-ended byte range when End is 0", func(ctx context.Context) {
			fileID := uuid.NewString()
			content := "0123456789"
			_, err := provider.Save(ctx, ownerID, fileID, bytes.NewReader([]byte(content)), 1<<20)
			Expect(err).ToNot(HaveOccurred())

			obj, err := provider.GetResponse(ctx, ownerID, fileID, &storage.Range{Start: 7, End: 0})
			Expect(err).ToNot(HaveOccurred())
			defer obj.Reader.Close()
			Expect(obj.ContentLength).To(BeEquivalentTo(3))

			data, err := io.ReadAll(obj.Reader)
			Expect(err).ToNot(HaveOccurred())
			Expect(string(data)).To(Equal("789"))
		}, NodeTimeout(10*time.Second))

		It("fails with OversizeStream when the stream exceeds maxSize", func(ctx context.Context) {
			fileID := uuid.NewString()
			content := bytes.Repeat([]byte("x"), 1024)
			_, err := provider.Save(ctx, ownerID, fileID, bytes.NewReader(content), 100)
			Expect(err).To(HaveOccurred())
			Expect(xfererr.Is(err, xfererr.OversizeStream)).To(BeTrue())

			exists, err := provider.Exists(ctx, ownerID, fileID)
			Expect(err).ToNot(HaveOccurred())
			Expect(exists).To(BeFalse())
		}, NodeTimeout(10*time.Second))

		It("returns NotFound for a missing object", func(ctx context.Context) {
			_, err := provider.GetResponse(ctx, ownerID, uuid.NewString(), nil)
			Expect(xfererr.Is(err, xfererr.NotFound)).To(BeTrue())
		}, NodeTimeout(10*time.Second))
	})

	Describe("Delete and Exists", func() {
		It("is idempotent for an absent object", func(ctx context.Context) {
			err := provider.Delete(ctx, ownerID, uuid.NewString())
			Expect(err).ToNot(HaveOccurred())
		}, NodeTimeout(10*time.Second))

		It("removes a written object", func(ctx context.Context) {
			fileID := uuid.NewString()
			_, err := provider.Save(ctx, ownerID, fileID, bytes.NewReader([]byte("hi")), 1<<20)
			Expect(err).ToNot(HaveOccurred())

			Expect(provider.Delete(ctx, ownerID, fileID)).To(Succeed())

			exists, err := provider.Exists(ctx, ownerID, fileID)
			Expect(err).ToNot(HaveOccurred())
			Expect(exists).To(BeFalse())
		}, NodeTimeout(10*time.Second))
	})

	Describe("multipart lifecycle", func() {
		It("assembles parts in ascending order regardless of upload order", func(ctx context.Context) {
			fileID := uuid.NewString()
			uploadID, err := provider.InitiateMultipart(ctx, ownerID, fileID)
			Expect(err).ToNot(HaveOccurred())
			Expect(uploadID).ToNot(BeEmpty())

			part2, err := provider.UploadPart(ctx, ownerID, fileID, uploadID, 2, bytes.NewReader([]byte("world")), 1<<20)
			Expect(err).ToNot(HaveOccurred())
			part1, err := provider.UploadPart(ctx, ownerID, fileID, uploadID, 1, bytes.NewReader([]byte("hello ")), 1<<20)
			Expect(err).ToNot(HaveOccurred())

			err = provider.CompleteMultipart(ctx, ownerID, fileID, uploadID, []storage.Part{
				{PartNumber: part2.PartNumber, ETag: part2.ETag},
				{PartNumber: part1.PartNumber, ETag: part1.ETag},
			})
			Expect(err).ToNot(HaveOccurred())

			obj, err := provider.GetResponse(ctx, ownerID, fileID, nil)
			Expect(err).ToNot(HaveOccurred())
			defer obj.Reader.Close()
			data, err := io.ReadAll(obj.Reader)
			Expect(err).ToNot(HaveOccurred())
			Expect(string(data)).To(Equal("hello world"))
		}, NodeTimeout(10*time.Second))

		It("fails completion with BadChunkSet when a part is missing", func(ctx context.Context) {
			fileID := uuid.NewString()
			uploadID, err := provider.InitiateMultipart(ctx, ownerID, fileID)
			Expect(err).ToNot(HaveOccurred())

			err = provider.CompleteMultipart(ctx, ownerID, fileID, uploadID, []storage.Part{
				{PartNumber: 1, ETag: "deadbeef"},
			})
			Expect(err).To(HaveOccurred())
			Expect(xfererr.Is(err, xfererr.BadChunkSet)).To(BeTrue())
		}, NodeTimeout(10*time.Second))

		It("aborts idempotently even with no parts uploaded", func(ctx context.Context) {
			fileID := uuid.NewString()
			uploadID, err := provider.InitiateMultipart(ctx, ownerID, fileID)
			Expect(err).ToNot(HaveOccurred())

			Expect(provider.AbortMultipart(ctx, ownerID, fileID, uploadID)).To(Succeed())
			Expect(provider.AbortMultipart(ctx, ownerID, fileID, uploadID)).To(Succeed())
		}, NodeTimeout(10*time.Second))
	})
})
