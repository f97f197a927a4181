package kernel

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/osim/mem/vm"
	"github.com/sarchlab/osim/process"
	"github.com/sarchlab/osim/scheduler"
	"github.com/sarchlab/osim/sim"
)

var _ = Describe("Builder", func() {
	It("should report every invalid parameter", func() {
		err := MakeBuilder().
			WithTotalFrames(0).
			WithWriteRatio(1.5).
			WithDefaultLoadedPages(9).
			Validate()

		Expect(err).To(MatchError(ErrInvalidConfig))
		Expect(err.Error()).To(ContainSubstring("total frames"))
		Expect(err.Error()).To(ContainSubstring("write ratio"))
		Expect(err.Error()).To(ContainSubstring("default loaded pages"))
	})

	It("should accept the defaults", func() {
		Expect(MakeBuilder().Validate()).To(Succeed())
		Expect(MakeBuilder().Config().TotalFrames).To(Equal(8))
	})

	It("should panic when building an invalid simulation", func() {
		Expect(func() {
			MakeBuilder().WithMode("turbo").Build("Kernel")
		}).To(Panic())
	})
})

var _ = Describe("Comp", func() {
	var (
		engine *sim.SerialEngine
		k      *Comp
	)

	BeforeEach(func() {
		engine = sim.NewSerialEngine()
		k = MakeBuilder().
			WithEngine(engine).
			WithInactivityTimeout(0).
			Build("Kernel")
	})

	Context("when creating processes", func() {
		It("should assign sequential pids and load the default pages", func() {
			pid1, err := k.Create(3)
			Expect(err).NotTo(HaveOccurred())
			pid2, err := k.Create(1)
			Expect(err).NotTo(HaveOccurred())

			Expect(pid1).To(Equal(vm.PID(1)))
			Expect(pid2).To(Equal(vm.PID(2)))

			p, err := k.Process(pid1)
			Expect(err).NotTo(HaveOccurred())
			Expect(p.State).To(Equal(process.New))
			Expect(p.Memory.NumPages).To(Equal(4))
			Expect(p.Memory.LoadedPages).To(Equal(2))
			Expect(k.ProcessPageTable(pid1)).To(HaveLen(4))
			Expect(k.MemorySnapshot().UsedFrames).To(Equal(4))
		})

		It("should not use up a pid on invalid arguments", func() {
			_, err := k.CreateWithMemory(12, 4, 0)
			Expect(err).To(MatchError(process.ErrInvalidArgument))

			pid, err := k.Create(0)
			Expect(err).NotTo(HaveOccurred())
			Expect(pid).To(Equal(vm.PID(1)))
			Expect(k.Processes()).To(HaveLen(1))
		})

		It("should load fewer pages when memory is short", func() {
			k = MakeBuilder().
				WithEngine(engine).
				WithTotalFrames(3).
				WithInactivityTimeout(0).
				Build("Kernel")

			_, err := k.CreateWithMemory(0, 4, 2)
			Expect(err).NotTo(HaveOccurred())
			pid, err := k.CreateWithMemory(0, 4, 2)
			Expect(err).NotTo(HaveOccurred())

			p, _ := k.Process(pid)
			Expect(p.Memory.LoadedPages).To(Equal(1))
			Expect(k.IsMemoryFull()).To(BeTrue())
		})
	})

	Context("when moving processes manually", func() {
		It("should return a copy of the process", func() {
			pid, _ := k.Create(0)

			p, err := k.Admit(pid, "")
			Expect(err).NotTo(HaveOccurred())
			p.State = process.Terminated

			q, _ := k.Process(pid)
			Expect(q.State).To(Equal(process.Ready))
			Expect(q.History[0].Cause).To(Equal(process.DefaultCause))
		})

		It("should report unknown processes", func() {
			_, err := k.Admit(7, "")
			Expect(err).To(MatchError(vm.ErrProcessNotFound))

			_, err = k.Process(7)
			Expect(err).To(MatchError(vm.ErrProcessNotFound))
		})

		It("should refuse to admit a waiting process", func() {
			pid, _ := k.Create(0)
			_, err := k.Admit(pid, "")
			Expect(err).NotTo(HaveOccurred())
			_, _, err = k.AssignCPU(pid, "")
			Expect(err).NotTo(HaveOccurred())
			_, err = k.RequestIO(pid, "")
			Expect(err).NotTo(HaveOccurred())
			before, _ := k.Process(pid)

			_, err = k.Admit(pid, "")

			Expect(err).To(MatchError(process.ErrInvalidTransition))
			after, _ := k.Process(pid)
			Expect(after.State).To(Equal(process.Waiting))
			Expect(after.History).To(Equal(before.History))
		})

		It("should free all memory of a terminated process", func() {
			pid, _ := k.Create(0)
			other, _ := k.Create(0)
			_, err := k.Admit(pid, "")
			Expect(err).NotTo(HaveOccurred())
			_, task, err := k.AssignCPU(pid, "")
			Expect(err).NotTo(HaveOccurred())

			p, err := k.Terminate(pid, "")

			Expect(err).NotTo(HaveOccurred())
			Expect(p.State).To(Equal(process.Terminated))
			Expect(p.Memory.LoadedPages).To(Equal(0))
			Expect(k.ProcessPageTable(pid)).To(BeNil())
			for _, f := range k.MemorySnapshot().Frames {
				Expect(f.Owner).NotTo(Equal(pid))
			}
			Expect(k.ProcessMemoryStats(other).PresentPages).To(Equal(2))

			Expect(task.Done()).To(BeTrue())
			Expect(task.Results()).To(BeEmpty())
			Expect(task.Abandoned()).To(Equal(task.Planned))

			_, err = k.AccessMemory(pid, 0)
			Expect(err).To(MatchError(vm.ErrProcessNotFound))
		})

		It("should notify hooks after every change", func() {
			positions := []*sim.HookPos{}
			k.AcceptHook(HookFunc(func(ctx sim.HookCtx) {
				Expect(ctx.Domain).To(BeIdenticalTo(k))
				positions = append(positions, ctx.Pos)

				// Hooks run outside the lock.
				k.Processes()
			}))

			pid, _ := k.Create(0)
			_, _ = k.Admit(pid, "")
			_, _ = k.Admit(pid, "")
			Expect(k.SetMode(scheduler.SemiAuto)).To(Succeed())
			k.Reset()

			Expect(positions).To(Equal([]*sim.HookPos{
				HookPosProcessCreated,
				HookPosMemoryChanged,
				HookPosTransition,
				HookPosModeChanged,
				HookPosReset,
			}))
		})

		It("should hand out a transition record to hooks", func() {
			var record process.TransitionRecord
			k.AcceptHook(HookFunc(func(ctx sim.HookCtx) {
				if ctx.Pos == HookPosTransition {
					record = ctx.Item.(process.TransitionRecord)
				}
			}))

			pid, _ := k.Create(0)
			_, _ = k.Admit(pid, "button")

			Expect(record.PID).To(Equal(pid))
			Expect(record.From).To(Equal(process.New))
			Expect(record.To).To(Equal(process.Ready))
			Expect(record.Cause).To(Equal("button"))
		})
	})

	Context("when reset", func() {
		It("should start over and ignore pending events", func() {
			pid, _ := k.Create(0)
			_, _ = k.Admit(pid, "")
			_, task, _ := k.AssignCPU(pid, "")
			Expect(k.SetMode(scheduler.Auto)).To(Succeed())

			k.Reset()

			Expect(task.Done()).To(BeTrue())
			Expect(k.Processes()).To(BeEmpty())
			Expect(k.Mode()).To(Equal(scheduler.Manual))
			Expect(k.MemorySnapshot().UsedFrames).To(Equal(0))
			Expect(k.ReplacementHistory()).To(BeEmpty())
			Expect(k.SwapSnapshot()).To(BeEmpty())

			Expect(engine.RunUntil(100)).To(Succeed())
			Expect(k.Processes()).To(BeEmpty())

			pid, err := k.Create(0)
			Expect(err).NotTo(HaveOccurred())
			Expect(pid).To(Equal(vm.PID(1)))
		})
	})

	Context("when driven by the scheduler", func() {
		It("should carry every process to the end in auto mode", func() {
			k = MakeBuilder().
				WithEngine(engine).
				WithTotalFrames(4).
				WithBaseSpeed(1).
				WithMode(scheduler.Auto).
				WithSeed(3).
				Build("Kernel")

			for i := 0; i < 3; i++ {
				_, err := k.Create(i)
				Expect(err).NotTo(HaveOccurred())
			}

			Expect(engine.RunUntil(2000)).To(Succeed())

			for _, p := range k.Processes() {
				Expect(p.State).To(Equal(process.Terminated))

				prev := process.New
				for _, r := range p.History {
					Expect(r.From).To(Equal(prev))
					Expect(process.CanTransition(r.From, r.To)).
						To(BeTrue())
					prev = r.To
				}
			}

			Expect(k.MemorySnapshot().UsedFrames).To(Equal(0))
			Expect(k.SchedulerState().PendingTimers).To(Equal(0))
		})

		It("should switch to auto mode after inactivity", func() {
			k = MakeBuilder().
				WithEngine(engine).
				WithInactivityTimeout(10).
				Build("Kernel")
			pid, _ := k.Create(0)

			Expect(engine.RunUntil(9)).To(Succeed())
			_, _ = k.Admit(pid, "")
			Expect(engine.RunUntil(18.9)).To(Succeed())
			Expect(k.Mode()).To(Equal(scheduler.Manual))

			Expect(engine.RunUntil(19)).To(Succeed())
			Expect(k.Mode()).To(Equal(scheduler.Auto))

			Expect(engine.RunUntil(25)).To(Succeed())
			p, _ := k.Process(pid)
			Expect(len(p.History)).To(BeNumerically(">", 1))
			Expect(p.History[1].Cause).To(Equal(scheduler.CauseAuto))
		})

		It("should stop moving processes at zero speed", func() {
			pid, _ := k.Create(0)
			k.SetSpeed(0)
			Expect(k.SetMode(scheduler.Auto)).To(Succeed())

			Expect(engine.RunUntil(100)).To(Succeed())

			p, _ := k.Process(pid)
			Expect(p.State).To(Equal(process.New))
			Expect(k.Speed()).To(Equal(sim.VTimeInSec(0)))
		})
	})
})
