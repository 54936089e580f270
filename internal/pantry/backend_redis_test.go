package pantry

import (
	"context"
	"os"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("RedisBackend", func() {
	var (
		ctx     context.Context
		backend *RedisBackend
	)

	BeforeEach(func() {
		url := os.Getenv("SHELF_SCANNER_TEST_REDIS_URL")
		if url == "" {
			Skip("SHELF_SCANNER_TEST_REDIS_URL not set")
		}
		ctx = context.Background()

		var err error
		backend, err = NewRedisBackend(RedisConfig{URL: url, KeyPrefix: "shelf-scanner-test:"})
		Expect(err).NotTo(HaveOccurred())
		Expect(backend.Remove(ctx)).To(Succeed())
	})

	AfterEach(func() {
		if backend != nil {
			Expect(backend.Remove(ctx)).To(Succeed())
			Expect(backend.Close()).To(Succeed())
		}
	})

	It("should read a missing key as empty", func() {
		data, err := backend.Load(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(data).To(BeEmpty())
	})

	It("should back a Store", func() {
		store := NewStore(backend, StoreOptions{})
		saved, err := store.Append(ctx, Record{Items: items("bread", 3)})
		Expect(err).NotTo(HaveOccurred())

		got, err := store.Get(ctx, saved.ID)
		Expect(err).NotTo(HaveOccurred())
		Expect(got.Items).To(Equal(items("bread", 3)))
	})
})

var _ = Describe("NewRedisBackend", func() {
	It("should reject malformed URLs", func() {
		_, err := NewRedisBackend(RedisConfig{URL: "not a url"})
		Expect(err).To(MatchError(ContainSubstring("parsing redis URL")))
	})
})
