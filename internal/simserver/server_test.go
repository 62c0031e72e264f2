package simserver_test

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/san-kum/simbridge/internal/cache"
	"github.com/san-kum/simbridge/internal/codec"
	"github.com/san-kum/simbridge/internal/initstate"
	"github.com/san-kum/simbridge/internal/ipc"
	"github.com/san-kum/simbridge/internal/observe"
	"github.com/san-kum/simbridge/internal/simserver"
	"github.com/san-kum/simbridge/internal/state"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(GinkgoWriter, nil))
}

func number(doc state.Document, key string) float64 {
	v, ok := doc[key].Float()
	ExpectWithOffset(1, ok).To(BeTrue(), "missing %q", key)
	return v
}

var _ = Describe("Telemetry", func() {
	It("reports the full PLANE_STATE document", func() {
		srv, err := simserver.New()
		Expect(err).NotTo(HaveOccurred())

		doc := srv.Telemetry()
		for _, key := range []string{
			"true_airspeed", "indicated_airspeed_ms", "vh_ind", "h_ind",
			"alpha", "vpath", "true_theta", "true_phi", "true_psi",
			"yoke_pitch_ratio", "stallWarning", "local_y",
		} {
			Expect(doc).To(HaveKey(key))
		}
		Expect(number(doc, "h_ind")).To(BeNumerically("~", 1500, 1e-9))
		Expect(number(doc, "vpath")).To(BeNumerically("~", -4, 1e-9))
		Expect(number(doc, "alpha")).To(BeNumerically("~", 2, 1e-9))
		Expect(number(doc, "indicated_airspeed_ms")).To(BeNumerically("<", number(doc, "true_airspeed")))

		target, ok := doc.Float(observe.TargetClimbRate)
		Expect(ok).To(BeTrue())
		Expect(target).To(Equal(simserver.DefaultClimbTarget))

		quat, ok := doc["rotationQuat"].Items()
		Expect(ok).To(BeTrue())
		Expect(quat).To(HaveLen(4))
	})

	It("projects through the glide angle task", func() {
		srv, err := simserver.New()
		Expect(err).NotTo(HaveOccurred())

		store := cache.New()
		store.PutState(srv.Telemetry())
		obs := observe.GlideAngle{}.Project(store)
		Expect(obs).To(HaveLen(observe.GlideAngle{}.Spec().Len()))
		Expect(obs.IsValid()).To(BeTrue())
	})
})

var _ = Describe("Server", func() {
	var (
		endpoint string
		cancel   context.CancelFunc
		served   chan error
		store    *cache.Cache
		client   *ipc.Client
		acks     chan codec.Envelope
	)

	BeforeEach(func() {
		dir, err := os.MkdirTemp("", "simserver")
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(os.RemoveAll, dir)
		endpoint = filepath.Join(dir, "sim.sock")

		srv, err := simserver.New(simserver.WithLogger(testLogger()), simserver.WithRate(100))
		Expect(err).NotTo(HaveOccurred())

		var ctx context.Context
		ctx, cancel = context.WithCancel(context.Background())
		DeferCleanup(cancel)
		served = make(chan error, 1)
		go func() { served <- srv.ListenAndServe(ctx, endpoint) }()

		waitCtx, waitCancel := context.WithTimeout(ctx, 5*time.Second)
		defer waitCancel()
		Expect(ipc.WaitForEndpoint(waitCtx, endpoint)).To(Succeed())

		acks = make(chan codec.Envelope, 4)
		store = cache.New()
		client = ipc.New(store,
			ipc.WithLogger(testLogger()),
			ipc.WithOutOfBand(func(env codec.Envelope) { acks <- env }),
		)
		DeferCleanup(client.Close)
		Expect(client.Connect(endpoint)).To(Succeed())
		Expect(client.Start()).To(Succeed())
	})

	It("streams state updates", func() {
		Eventually(store.Generation).Should(BeNumerically(">=", 3))
		doc, ok := store.State()
		Expect(ok).To(BeTrue())
		Expect(doc).To(HaveKey("h_ind"))
	})

	It("applies the elevator command", func() {
		cmd := codec.NewCommand(codec.TypeSetElevator, 7, state.Document{
			"yoke_pitch_ratio": state.Number(0.5),
		})
		Expect(client.Send(cmd)).To(BeTrue())

		Eventually(func() float64 {
			doc, ok := store.State()
			if !ok {
				return 0
			}
			v, _ := doc["yoke_pitch_ratio"].Float()
			return v
		}).Should(BeNumerically("~", 0.5, 1e-9))
	})

	It("applies and acknowledges a plane state", func() {
		cmd, pose := initstate.New(initstate.DefaultParams(), 3).Command(42)
		Expect(client.Send(cmd)).To(BeTrue())

		var ack codec.Envelope
		Eventually(acks).Should(Receive(&ack))
		Expect(ack.Type).To(Equal(simserver.TypeAck))
		Expect(ack.RequestID).To(Equal(int64(42)))

		since := store.Generation()
		Expect(store.AwaitUpdates(1, time.Second)).To(BeTrue())
		Expect(store.Generation()).To(BeNumerically(">", since))

		doc, ok := store.State()
		Expect(ok).To(BeTrue())
		Expect(number(doc, "h_ind")).To(BeNumerically("~", pose.Altitude, 10))
		Expect(number(doc, "true_theta")).To(BeNumerically("~", pose.Pitch, 2))
		Expect(number(doc, "true_psi")).To(BeNumerically("~", pose.Heading, 1e-6))
		Expect(number(doc, "true_airspeed")).To(BeNumerically("~", pose.Speed, 0.1*pose.Speed))
	})

	It("ignores unknown messages", func() {
		Expect(client.Send(codec.NewCommand("TELEPORT", 1, nil))).To(BeTrue())
		since := store.Generation()
		Expect(store.AwaitSince(since, time.Second)).To(BeTrue())
		Consistently(acks, 100*time.Millisecond).ShouldNot(Receive())
	})

	It("closes clients and the socket on shutdown", func() {
		Eventually(store.Generation).Should(BeNumerically(">=", 1))
		cancel()

		Eventually(served, 5*time.Second).Should(Receive(BeNil()))
		Eventually(client.Done()).Should(BeClosed())
		_, err := os.Stat(endpoint)
		Expect(os.IsNotExist(err)).To(BeTrue())
	})
})
