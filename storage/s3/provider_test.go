package s3_test

import (
	"bytes"
	"context"
	"io"
	"time"

	"github.com/google/uuid"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/vaultdrive/vaultdrive/storage"
	"github.com/vaultdrive/vaultdrive/xfererr"
)

var _ = Describe("Provider", func() {
	var ownerID string

	BeforeEach(func() {
		ownerID = uuid.NewString()
	})

	Describe("Save and GetResponse", func() {
		It("round-trips the full object", func(ctx context.Context) {
			fileID := uuid.NewString()
			content := "hello from vaultdrive"

			n, err := provider.Save(ctx, ownerID, fileID, bytes.NewReader([]byte(content)), 1<<20)
			Expect(err).ToNot(HaveOccurred())
			Expect(n).To(BeEquivalentTo(len(content)))

			obj, err := provider.GetResponse(ctx, ownerID, fileID, nil)
			Expect(err).ToNot(HaveOccurred())
			defer obj.Reader.Close()

			data, err := io.ReadAll(obj.Reader)
			Expect(err).ToNot(HaveOccurred())
			Expect(string(data)).To(Equal(content))
		}, NodeTimeout(30*time.Second))

		It("serves an open-ended byte range when End is 0", func(ctx context.Context) {
			fileID := uuid.NewString()
			content := "hello from vaultdrive"

			_, err := provider.Save(ctx, ownerID, fileID, bytes.NewReader([]byte(content)), 1<<20)
			Expect(err).ToNot(HaveOccurred())

			obj, err := provider.GetResponse(ctx, ownerID, fileID, &storage.Range{Start: 6, End: 0})
			Expect(err).ToNot(HaveOccurred())
			defer obj.Reader.Close()

			data, err := io.ReadAll(obj.Reader)
			Expect(err).ToNot(HaveOccurred())
			Expect(string(data)).To(Equal("from vaultdrive"))
		}, NodeTimeout(30*time.Second))

		It("fails with OversizeStream when the stream exceeds maxSize", func(ctx context.Context) {
			fileID := uuid.NewString()
			content := bytes.Repeat([]byte("x"), 1024)
			_, err := provider.Save(ctx, ownerID, fileID, bytes.NewReader(content), 100)
			Expect(err).To(HaveOccurred())
			Expect(xfererr.Is(err, xfererr.OversizeStream)).To(BeTrue())
		}, NodeTimeout(30*time.Second))

		It("returns NotFound for a missing object", func(ctx context.Context) {
			_, err := provider.GetResponse(ctx, ownerID, uuid.NewString(), nil)
			Expect(xfererr.Is(err, xfererr.NotFound)).To(BeTrue())
		}, NodeTimeout(30*time.Second))
	})

	Describe("Delete and Exists", func() {
		It("is idempotent for an absent object", func(ctx context.Context) {
			Expect(provider.Delete(ctx, ownerID, uuid.NewString())).To(Succeed())
		}, NodeTimeout(30*time.Second))

		It("removes a written object", func(ctx context.Context) {
			fileID := uuid.NewString()
			_, err := provider.Save(ctx, ownerID, fileID, bytes.NewReader([]byte("hi")), 1<<20)
			Expect(err).ToNot(HaveOccurred())

			Expect(provider.Delete(ctx, ownerID, fileID)).To(Succeed())

			exists, err := provider.Exists(ctx, ownerID, fileID)
			Expect(err).ToNot(HaveOccurred())
			Expect(exists).To(BeFalse())
		}, NodeTimeout(30*time.Second))
	})

	Describe("multipart lifecycle", func() {
		It("assembles parts uploaded out of order", func(ctx context.Context) {
			fileID := uuid.NewString()
			uploadID, err := provider.InitiateMultipart(ctx, ownerID, fileID)
			Expect(err).ToNot(HaveOccurred())
			Expect(uploadID).ToNot(BeEmpty())

			partA := bytes.Repeat([]byte("a"), 5*1024*1024)
			partB := bytes.Repeat([]byte("b"), 1024)

			up2, err := provider.UploadPart(ctx, ownerID, fileID, uploadID, 2, bytes.NewReader(partB), int64(len(partB)))
			Expect(err).ToNot(HaveOccurred())
			up1, err := provider.UploadPart(ctx, ownerID, fileID, uploadID, 1, bytes.NewReader(partA), int64(len(partA)))
			Expect(err).ToNot(HaveOccurred())

			err = provider.CompleteMultipart(ctx, ownerID, fileID, uploadID, []storage.Part{
				{PartNumber: up2.PartNumber, ETag: up2.ETag},
				{PartNumber: up1.PartNumber, ETag: up1.ETag},
			})
			Expect(err).ToNot(HaveOccurred())

			obj, err := provider.GetResponse(ctx, ownerID, fileID, nil)
			Expect(err).ToNot(HaveOccurred())
			defer obj.Reader.Close()
			Expect(obj.ContentLength).To(BeEquivalentTo(len(partA) + len(partB)))
		}, NodeTimeout(60*time.Second))

		It("aborts idempotently", func(ctx context.Context) {
			fileID := uuid.NewString()
			uploadID, err := provider.InitiateMultipart(ctx, ownerID, fileID)
			Expect(err).ToNot(HaveOccurred())

			Expect(provider.AbortMultipart(ctx, ownerID, fileID, uploadID)).To(Succeed())
			Expect(provider.AbortMultipart(ctx, ownerID, fileID, uploadID)).To(Succeed())
		}, NodeTimeout(30*time.Second))
	})

	Describe("DeleteUserData and GetUserStorageSize", func() {
		It("reports zero for an owner with no objects", func(ctx context.Context) {
			size, err := provider.GetUserStorageSize(ctx, uuid.NewString())
			Expect(err).ToNot(HaveOccurred())
			Expect(size).To(BeZero())
		}, NodeTimeout(30*time.Second))

		It("sums and then wipes every object under the owner prefix", func(ctx context.Context) {
			for i := 0; i < 3; i++ {
				_, err := provider.Save(ctx, ownerID, uuid.NewString(), bytes.NewReader([]byte("payload")), 1<<20)
				Expect(err).ToNot(HaveOccurred())
			}

			size, err := provider.GetUserStorageSize(ctx, ownerID)
			Expect(err).ToNot(HaveOccurred())
			Expect(size).To(BeEquivalentTo(3 * len("payload")))

			Expect(provider.DeleteUserData(ctx, ownerID)).To(Succeed())

			size, err = provider.GetUserStorageSize(ctx, ownerID)
			Expect(err).ToNot(HaveOccurred())
			Expect(size).To(BeZero())
		}, NodeTimeout(30*time.Second))
	})
})
