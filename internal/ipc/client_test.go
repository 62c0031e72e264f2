package ipc_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/san-kum/simbridge/internal/cache"
	"github.com/san-kum/simbridge/internal/codec"
	"github.com/san-kum/simbridge/internal/ipc"
	"github.com/san-kum/simbridge/internal/state"
)

const planeState = `{"type":"PLANE_STATE","requestId":1,"data":{"position":{"h_ind":1500.5},"stallWarning":0}}` + "\f"

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(GinkgoWriter, nil))
}

func tempDir() string {
	dir, err := os.MkdirTemp("", "ipc")
	Expect(err).NotTo(HaveOccurred())
	DeferCleanup(os.RemoveAll, dir)
	return dir
}

var _ = Describe("Client", func() {
	var (
		endpoint string
		peers    chan net.Conn
		store    *cache.Cache
		client   *ipc.Client
	)

	acceptPeer := func() net.Conn {
		var conn net.Conn
		Eventually(peers).Should(Receive(&conn))
		DeferCleanup(conn.Close)
		return conn
	}

	BeforeEach(func() {
		endpoint = filepath.Join(tempDir(), "sim.sock")
		ln, err := net.Listen("unix", endpoint)
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(ln.Close)

		peers = make(chan net.Conn, 4)
		go func() {
			for {
				conn, err := ln.Accept()
				if err != nil {
					return
				}
				peers <- conn
			}
		}()

		store = cache.New()
		client = ipc.New(store, ipc.WithLogger(testLogger()))
		DeferCleanup(client.Close)
	})

	Context("before connecting", func() {
		It("returns false from Send", func() {
			fresh := ipc.New(cache.New())
			Expect(fresh.Send(codec.NewCommand(codec.TypeSetElevator, 1, nil))).To(BeFalse())
			Expect(fresh.Status()).To(Equal(ipc.Disconnected))
		})

		It("refuses to start", func() {
			Expect(client.Start()).To(MatchError(ipc.ErrNotConnected))
		})

		It("reports a missing endpoint", func() {
			err := client.Connect(filepath.Join(tempDir(), "missing.sock"))
			Expect(errors.Is(err, ipc.ErrEndpointNotFound)).To(BeTrue())

			var epErr *ipc.EndpointError
			Expect(errors.As(err, &epErr)).To(BeTrue())
			Expect(epErr.Endpoint).To(HaveSuffix("missing.sock"))
		})

		It("reports a failed dial", func() {
			plain := filepath.Join(tempDir(), "plain")
			Expect(os.WriteFile(plain, nil, 0o600)).To(Succeed())

			err := client.Connect(plain)
			Expect(errors.Is(err, ipc.ErrConnectFailed)).To(BeTrue())
			Expect(client.Status()).To(Equal(ipc.Disconnected))
		})
	})

	Context("when connected", func() {
		var peer net.Conn

		BeforeEach(func() {
			Expect(client.Connect(endpoint)).To(Succeed())
			peer = acceptPeer()
			Expect(client.Start()).To(Succeed())
		})

		It("tracks the endpoint and status", func() {
			Expect(client.Status()).To(Equal(ipc.Connected))
			Expect(client.Endpoint()).To(Equal(endpoint))
			Expect(client.Start()).To(MatchError(ipc.ErrAlreadyStarted))
		})

		It("stores PLANE_STATE documents in the cache", func() {
			_, err := io.WriteString(peer, planeState)
			Expect(err).NotTo(HaveOccurred())

			Eventually(store.Generation).Should(Equal(uint64(1)))
			doc, ok := store.State()
			Expect(ok).To(BeTrue())
			h, ok := doc.Float(state.Path("position", "h_ind"))
			Expect(ok).To(BeTrue())
			Expect(h).To(Equal(1500.5))
		})

		It("reassembles frames split across writes", func() {
			half := len(planeState) / 2
			_, err := io.WriteString(peer, planeState[:half])
			Expect(err).NotTo(HaveOccurred())
			Consistently(store.Generation, 50*time.Millisecond).Should(BeZero())

			_, err = io.WriteString(peer, planeState[half:]+planeState)
			Expect(err).NotTo(HaveOccurred())
			Eventually(store.Generation).Should(Equal(uint64(2)))
		})

		It("keeps reading after a malformed frame", func() {
			_, err := io.WriteString(peer, "not json\f"+`{"requestId":2}`+"\f"+planeState)
			Expect(err).NotTo(HaveOccurred())

			Eventually(store.Generation).Should(Equal(uint64(1)))
			Expect(client.DecodeErrors()).To(Equal(uint64(2)))
			Expect(client.Status()).To(Equal(ipc.Connected))
		})

		It("writes one terminated frame per command", func() {
			cmd := codec.NewCommand(codec.TypeSetElevator, 3, state.Document{
				"yoke_pitch_ratio": state.Number(0.25),
			})
			Expect(client.Send(cmd)).To(BeTrue())

			frame, err := codec.NewFrameReader(peer, 0).Next()
			Expect(err).NotTo(HaveOccurred())
			env, err := codec.Decode(frame)
			Expect(err).NotTo(HaveOccurred())
			Expect(env.Command()).To(Equal(cmd))
		})

		It("ends the loop and fails sends after the peer closes", func() {
			Expect(peer.Close()).To(Succeed())

			Eventually(client.Done()).Should(BeClosed())
			Expect(client.Status()).To(Equal(ipc.Closing))
			Expect(client.Send(codec.NewCommand(codec.TypeSetElevator, 4, nil))).To(BeFalse())
		})

		It("stops promptly while a read is blocked", func() {
			client.Stop()

			Eventually(client.Done(), time.Second).Should(BeClosed())
			Expect(client.Status()).To(Equal(ipc.Closing))
			Expect(client.Send(codec.NewCommand(codec.TypeSetElevator, 5, nil))).To(BeFalse())
		})

		It("closes the previous socket on reconnect", func() {
			Expect(client.Connect(endpoint)).To(Succeed())
			second := acceptPeer()

			buf := make([]byte, 1)
			Expect(peer.SetReadDeadline(time.Now().Add(time.Second))).To(Succeed())
			_, err := peer.Read(buf)
			Expect(err).To(MatchError(io.EOF))

			Expect(client.Status()).To(Equal(ipc.Connected))
			Expect(client.Start()).To(Succeed())
			_, err = io.WriteString(second, planeState)
			Expect(err).NotTo(HaveOccurred())
			Eventually(store.Generation).Should(Equal(uint64(1)))
		})
	})

	It("hands out-of-band messages to the callback without caching them", func() {
		seen := make(chan codec.Envelope, 1)
		oob := ipc.New(store,
			ipc.WithLogger(testLogger()),
			ipc.WithOutOfBand(func(env codec.Envelope) { seen <- env }),
		)
		DeferCleanup(oob.Close)

		Expect(oob.Connect(endpoint)).To(Succeed())
		peer := acceptPeer()
		Expect(oob.Start()).To(Succeed())

		_, err := io.WriteString(peer, `{"type":"ACK","requestId":7,"data":{"ok":true}}`+"\f")
		Expect(err).NotTo(HaveOccurred())

		var env codec.Envelope
		Eventually(seen).Should(Receive(&env))
		Expect(env.Type).To(Equal("ACK"))
		Expect(env.RequestID).To(Equal(int64(7)))
		Consistently(store.Generation, 50*time.Millisecond).Should(BeZero())
	})
})

var _ = Describe("WaitForEndpoint", func() {
	It("returns once the socket appears", func() {
		endpoint := filepath.Join(tempDir(), "late.sock")
		listeners := make(chan net.Listener, 1)
		go func() {
			defer GinkgoRecover()
			time.Sleep(50 * time.Millisecond)
			ln, err := net.Listen("unix", endpoint)
			Expect(err).NotTo(HaveOccurred())
			listeners <- ln
		}()

		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		Expect(ipc.WaitForEndpoint(ctx, endpoint)).To(Succeed())

		var ln net.Listener
		Eventually(listeners).Should(Receive(&ln))
		Expect(ln.Close()).To(Succeed())
	})

	It("gives up when the context expires", func() {
		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()
		err := ipc.WaitForEndpoint(ctx, filepath.Join(tempDir(), "never.sock"))
		Expect(err).To(MatchError(context.DeadlineExceeded))
	})
})
