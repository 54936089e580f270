package scanning

import (
	"context"
	"errors"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Retry", func() {
	var (
		policy  RetryPolicy
		calls   int
		delays  []time.Duration
		attempt []int
	)

	BeforeEach(func() {
		calls = 0
		delays = nil
		attempt = nil
		policy = RetryPolicy{
			MaxAttempts: 3,
			BaseDelay:   time.Millisecond,
			OnRetry: func(n int, delay time.Duration, err error) {
				attempt = append(attempt, n)
				delays = append(delays, delay)
			},
		}
	})

	When("the operation fails twice then succeeds", func() {
		It("should return the success value after exactly two backoffs", func() {
			value, err := Retry(context.Background(), policy, func(ctx context.Context) (string, error) {
				calls++
				if calls < 3 {
					return "", &TransportError{Kind: KindTimeout}
				}
				return "ok", nil
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(value).To(Equal("ok"))
			Expect(calls).To(Equal(3))
			Expect(attempt).To(Equal([]int{0, 1}))
		})

		It("should double the delay each time", func() {
			_, _ = Retry(context.Background(), policy, func(ctx context.Context) (string, error) {
				calls++
				if calls < 3 {
					return "", &TransportError{Kind: KindNetwork}
				}
				return "ok", nil
			})
			Expect(delays).To(HaveLen(2))
			Expect(delays[1]).To(Equal(2 * delays[0]))
		})
	})

	When("every attempt fails", func() {
		It("should return the last error", func() {
			_, err := Retry(context.Background(), policy, func(ctx context.Context) (int, error) {
				calls++
				return 0, &TransportError{Kind: KindHTTPStatus, StatusCode: 500 + calls}
			})
			Expect(calls).To(Equal(3))
			var transportErr *TransportError
			Expect(errors.As(err, &transportErr)).To(BeTrue())
			Expect(transportErr.StatusCode).To(Equal(503))
			Expect(attempt).To(HaveLen(2))
		})
	})

	When("the error is not retryable", func() {
		It("should not retry encoding errors", func() {
			_, err := Retry(context.Background(), policy, func(ctx context.Context) (int, error) {
				calls++
				return 0, &EncodingError{Reason: "bad"}
			})
			Expect(calls).To(Equal(1))
			var encodingErr *EncodingError
			Expect(errors.As(err, &encodingErr)).To(BeTrue())
		})

		It("should not retry client errors", func() {
			_, err := Retry(context.Background(), policy, func(ctx context.Context) (int, error) {
				calls++
				return 0, &TransportError{Kind: KindHTTPStatus, StatusCode: 401}
			})
			Expect(calls).To(Equal(1))
			Expect(err).To(HaveOccurred())
		})
	})

	When("the context is cancelled", func() {
		It("should return the context error", func() {
			ctx, cancel := context.WithCancel(context.Background())
			cancel()
			_, err := Retry(ctx, policy, func(ctx context.Context) (int, error) {
				calls++
				return 0, &TransportError{Kind: KindNetwork}
			})
			Expect(err).To(MatchError(context.Canceled))
		})
	})
})

var _ = Describe("TransportError", func() {
	DescribeTable("Retryable",
		func(err *TransportError, expected bool) {
			Expect(err.Retryable()).To(Equal(expected))
			Expect(IsRetryable(err)).To(Equal(expected))
		},
		Entry("timeout", &TransportError{Kind: KindTimeout}, true),
		Entry("network", &TransportError{Kind: KindNetwork}, true),
		Entry("tls", &TransportError{Kind: KindTLS}, false),
		Entry("blocked", &TransportError{Kind: KindBlocked}, false),
		Entry("429", &TransportError{Kind: KindHTTPStatus, StatusCode: 429}, true),
		Entry("502", &TransportError{Kind: KindHTTPStatus, StatusCode: 502}, true),
		Entry("401", &TransportError{Kind: KindHTTPStatus, StatusCode: 401}, false),
		Entry("404", &TransportError{Kind: KindHTTPStatus, StatusCode: 404}, false),
	)
})
