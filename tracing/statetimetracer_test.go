package tracing

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/osim/kernel"
	"github.com/sarchlab/osim/process"
	"github.com/sarchlab/osim/sim"
)

var _ = Describe("StateTimeTracer", func() {
	var (
		engine *sim.SerialEngine
		k      *kernel.Comp
		tracer *StateTimeTracer
	)

	BeforeEach(func() {
		engine = sim.NewSerialEngine()
		k = kernel.MakeBuilder().
			WithEngine(engine).
			WithInactivityTimeout(0).
			WithAccessDelay(100).
			Build("Kernel")
		tracer = NewStateTimeTracer()
		Attach(k, tracer)
	})

	It("should add up the time of every stay", func() {
		pid, _ := k.Create(0)
		Expect(engine.RunUntil(2)).To(Succeed())
		_, _ = k.Admit(pid, "")
		Expect(engine.RunUntil(3)).To(Succeed())
		_, _, _ = k.AssignCPU(pid, "")
		Expect(engine.RunUntil(6)).To(Succeed())
		_, _ = k.Preempt(pid, "")
		Expect(engine.RunUntil(7)).To(Succeed())
		_, _, _ = k.AssignCPU(pid, "")
		Expect(engine.RunUntil(8)).To(Succeed())
		_, _ = k.Terminate(pid, "")

		Expect(tracer.TimeOf(pid, process.New)).To(Equal(sim.VTimeInSec(2)))
		Expect(tracer.TotalTime(process.Ready)).To(Equal(sim.VTimeInSec(2)))
		Expect(tracer.TotalTime(process.Running)).To(Equal(sim.VTimeInSec(4)))
		Expect(tracer.AverageTime(process.Running)).
			To(Equal(sim.VTimeInSec(2)))
		Expect(tracer.AverageTime(process.Waiting)).To(BeZero())
	})

	It("should forget everything when the simulation resets", func() {
		pid, _ := k.Create(0)
		Expect(engine.RunUntil(2)).To(Succeed())
		_, _ = k.Admit(pid, "")

		k.Reset()

		Expect(tracer.TotalTime(process.New)).To(BeZero())
		Expect(tracer.TimeOf(pid, process.New)).To(BeZero())
	})
})
