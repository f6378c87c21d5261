package clamav_test

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/aquasecurity/layerscan/pkg/clamav"
	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
	. "github.com/onsi/gomega/ghttp"
)

var _ = Describe("The ClamAV client", func() {

	var server *Server
	var client *clamav.Client
	var ctx context.Context

	BeforeEach(func() {
		var err error
		ctx = context.Background()
		server = NewServer()
		client, err = clamav.NewClient(server.URL())
		Expect(err).ToNot(HaveOccurred())
	})

	AfterEach(func() {
		server.Close()
	})

	Describe("fetching info", func() {
		BeforeEach(func() {
			server.AppendHandlers(
				CombineHandlers(
					VerifyRequest("GET", "/info"),
					VerifyHeader(http.Header{
						"User-Agent": []string{"LayerScan"},
					}),
					RespondWith(http.StatusOK, `{"clamav_version":"1.3.1","signature_version":27400,"signature_date":"2024-09-01"}`),
				),
			)
		})

		It("should decode the engine info", func() {
			info, err := client.Info(ctx)
			Expect(err).ToNot(HaveOccurred())
			Expect(info).To(Equal(clamav.Info{
				ClamAVVersion:    "1.3.1",
				SignatureVersion: 27400,
				SignatureDate:    "2024-09-01",
			}))
		})
	})

	Describe("checking health", func() {
		Context("when the service is not ready", func() {
			BeforeEach(func() {
				server.AppendHandlers(
					CombineHandlers(
						VerifyRequest("GET", "/health"),
						RespondWith(http.StatusServiceUnavailable, `{"message":"signatures are being reloaded"}`),
					),
				)
			})

			It("should return a scan error with the body message", func() {
				_, err := client.Health(ctx)
				var scanErr *clamav.ScanError
				Expect(err).To(BeAssignableToTypeOf(scanErr))
				Expect(err).To(MatchError(&clamav.ScanError{
					StatusCode: http.StatusServiceUnavailable,
					Message:    "signatures are being reloaded",
				}))
			})
		})
	})

	Describe("fetching monitoring stats", func() {
		BeforeEach(func() {
			server.AppendHandlers(
				CombineHandlers(
					VerifyRequest("GET", "/monitor"),
					RespondWith(http.StatusOK, `{"state":"VALID PRIMARY","threads":{"live":2,"idle":8,"max":10},"queue_length":3,"memory_mb":412.5}`),
				),
			)
		})

		It("should decode the stats", func() {
			info, err := client.Monitor(ctx)
			Expect(err).ToNot(HaveOccurred())
			Expect(info.Threads).To(Equal(clamav.Threads{Live: 2, Idle: 8, Max: 10}))
			Expect(info.QueueLength).To(Equal(3))
		})
	})

	Describe("buffered scan", func() {
		Context("when malware is found", func() {
			BeforeEach(func() {
				server.AppendHandlers(
					CombineHandlers(
						VerifyRequest("POST", "/scan"),
						VerifyContentType("application/octet-stream"),
						VerifyBody([]byte("layer-bytes")),
						RespondWith(http.StatusOK, `{"result":"FOUND","message":"Eicar-Signature","name":"/bin/foo"}`),
					),
				)
			})

			It("should return a malware-detected verdict", func() {
				verdict, err := client.Scan(ctx, strings.NewReader("layer-bytes"), time.Minute)
				Expect(err).ToNot(HaveOccurred())
				Expect(verdict.MalwareDetected()).To(BeTrue())
				Expect(verdict.Findings).To(ConsistOf("Eicar-Signature found in file /bin/foo"))
			})
		})

		Context("when the service denies the request", func() {
			BeforeEach(func() {
				server.AppendHandlers(
					CombineHandlers(
						VerifyRequest("POST", "/scan"),
						RespondWith(http.StatusForbidden, "forbidden"),
					),
				)
			})

			It("should return an unrecoverable scan error", func() {
				_, err := client.Scan(ctx, strings.NewReader("layer-bytes"), time.Minute)
				Expect(err).To(MatchError(&clamav.ScanError{StatusCode: http.StatusForbidden, Message: "forbidden"}))
				Expect(err.(*clamav.ScanError).Aborted()).To(BeFalse())
			})
		})
	})

	Describe("streaming scan", func() {
		Context("when the stream ends with a result event", func() {
			BeforeEach(func() {
				server.AppendHandlers(
					CombineHandlers(
						VerifyRequest("POST", "/sse/scan"),
						VerifyHeader(http.Header{
							"Accept": []string{"text/event-stream"},
						}),
						RespondWith(http.StatusOK,
							"event: heartbeat\ndata: {}\n\n"+
								"event: progress\ndata: {\"scanned_octets\":1024}\n\n"+
								"event: result\ndata: {\"result\":\"OK\",\"meta\":{\"scanned_octets\":2048}}\n\n",
							http.Header{"Content-Type": []string{"text/event-stream"}}),
					),
				)
			})

			It("should return the final verdict", func() {
				verdict, err := client.SSEScan(ctx, strings.NewReader("layer-bytes"), time.Minute)
				Expect(err).ToNot(HaveOccurred())
				Expect(verdict.MalwareDetected()).To(BeFalse())
				Expect(verdict.Meta.ScannedOctets).To(Equal(int64(2048)))
			})
		})

		Context("when the scan is aborted by the service", func() {
			BeforeEach(func() {
				server.AppendHandlers(
					CombineHandlers(
						VerifyRequest("POST", "/sse/scan"),
						RespondWith(clamav.ErrorCodeOnScanAborted, `{"message":"max scan size exceeded"}`),
					),
				)
			})

			It("should return a recoverable scan error", func() {
				_, err := client.SSEScan(ctx, strings.NewReader("layer-bytes"), time.Minute)
				var scanErr *clamav.ScanError
				Expect(err).To(BeAssignableToTypeOf(scanErr))
				Expect(err.(*clamav.ScanError).Aborted()).To(BeTrue())
				Expect(err.(*clamav.ScanError).Message).To(Equal("max scan size exceeded"))
			})
		})

		Context("when the stream ends without a result", func() {
			BeforeEach(func() {
				server.AppendHandlers(
					CombineHandlers(
						VerifyRequest("POST", "/sse/scan"),
						RespondWith(http.StatusOK, "event: progress\ndata: {}\n\n"),
					),
				)
			})

			It("should return an error", func() {
				_, err := client.SSEScan(ctx, strings.NewReader("layer-bytes"), time.Minute)
				Expect(err).To(MatchError(clamav.ErrNoVerdict))
			})
		})

		Context("when the service does not respond in time", func() {
			BeforeEach(func() {
				server.AppendHandlers(
					CombineHandlers(
						VerifyRequest("POST", "/sse/scan"),
						func(w http.ResponseWriter, r *http.Request) {
							time.Sleep(500 * time.Millisecond)
						},
					),
				)
			})

			It("should return a timeout error", func() {
				_, err := client.SSEScan(ctx, strings.NewReader("layer-bytes"), 50*time.Millisecond)
				Expect(clamav.IsTimeout(err)).To(BeTrue())
				Expect(clamav.IsConnectionError(err)).To(BeFalse())
			})
		})
	})

	Describe("connecting to an unreachable service", func() {
		It("should return a connection error", func() {
			unreachable := NewServer()
			unreachableClient, err := clamav.NewClient(unreachable.URL())
			Expect(err).ToNot(HaveOccurred())
			unreachable.Close()

			_, err = unreachableClient.SSEScan(ctx, strings.NewReader("layer-bytes"), time.Minute)
			Expect(clamav.IsConnectionError(err)).To(BeTrue())
		})
	})

	Describe("constructing a client", func() {
		It("should reject an invalid URL", func() {
			_, err := clamav.NewClient("not a url")
			Expect(err).To(HaveOccurred())
		})
	})
})
