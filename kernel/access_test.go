package kernel

import (
	"fmt"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/osim/mem/swap"
	"github.com/sarchlab/osim/mem/vm"
	"github.com/sarchlab/osim/mem/vm/pagefault"
	"github.com/sarchlab/osim/process"
	"github.com/sarchlab/osim/sim"
)

type failingDisk struct {
	op swap.OpType
}

func (d failingDisk) ShouldFail(op swap.OpType, _ vm.PID, _ int) bool {
	return op == d.op
}

var _ = Describe("Memory access", func() {
	var (
		engine  *sim.SerialEngine
		builder Builder
		k       *Comp
	)

	BeforeEach(func() {
		engine = sim.NewSerialEngine()
		builder = MakeBuilder().
			WithEngine(engine).
			WithTotalFrames(4).
			WithInactivityTimeout(0)
		k = builder.Build("Kernel")
	})

	fillMemory := func() []vm.PID {
		pids := []vm.PID{}
		for i := 0; i < 4; i++ {
			pid, err := k.CreateWithMemory(0, 4, 1)
			Expect(err).NotTo(HaveOccurred())
			pids = append(pids, pid)
		}
		Expect(k.IsMemoryFull()).To(BeTrue())

		return pids
	}

	It("should replace a page when memory is full", func() {
		fillMemory()
		pid, err := k.Create(0)
		Expect(err).NotTo(HaveOccurred())

		r, err := k.AccessMemory(pid, 4096)

		Expect(err).NotTo(HaveOccurred())
		Expect(r.PageFault).To(BeTrue())
		Expect(r.Replacement).To(BeTrue())
		Expect(r.Success).To(BeTrue())
		Expect(r.Victim).NotTo(BeNil())
		Expect(r.Victim.FrameNumber).To(BeNumerically(">=", 0))
		Expect(r.Victim.FrameNumber).To(BeNumerically("<", 4))
		Expect(r.Victim.PID).To(BeElementOf(vm.PID(1), vm.PID(2),
			vm.PID(3), vm.PID(4)))
		Expect(k.ReplacementStats().TotalReplacements).To(Equal(1))

		p, _ := k.Process(pid)
		Expect(p.State).To(Equal(process.New))
		Expect(p.History).To(BeEmpty())
		Expect(p.Memory.PageFaults).To(Equal(1))
		Expect(p.Memory.MemoryAccesses).To(Equal(1))
		Expect(p.Memory.LoadedPages).To(Equal(1))
		Expect(p.Syscalls[len(p.Syscalls)-1].Type).
			To(Equal(process.SyscallPageFault))

		victim, _ := k.Process(r.Victim.PID)
		Expect(victim.Memory.LoadedPages).To(Equal(0))
		Expect(k.ProcessPageTable(r.Victim.PID)[0].Present).To(BeFalse())
	})

	It("should give every used frame a second chance first", func() {
		pids := fillMemory()
		for _, pid := range pids {
			r, err := k.AccessMemory(pid, 0)
			Expect(err).NotTo(HaveOccurred())
			Expect(r.PageFault).To(BeFalse())
		}
		pid, _ := k.Create(0)

		r, err := k.AccessMemory(pid, 0)

		Expect(err).NotTo(HaveOccurred())
		Expect(r.Attempts).To(BeNumerically(">=", 4))
		secondChances := 0
		for _, s := range k.ClockSteps() {
			if s.Action == pagefault.StepSecondChance {
				secondChances++
			}
		}
		Expect(secondChances).To(Equal(4))
		Expect(r.Victim.FrameNumber).To(Equal(0))
		Expect(r.Victim.UseBit).To(BeFalse())
	})

	It("should keep the dirty flag of a page written on a fault", func() {
		pid, _ := k.CreateWithMemory(0, 4, 0)

		r, err := k.WriteMemory(pid, 2*4096+17)

		Expect(err).NotTo(HaveOccurred())
		Expect(r.PageFault).To(BeTrue())
		Expect(r.Write).To(BeTrue())
		Expect(r.PageNumber).To(Equal(2))
		Expect(r.Offset).To(Equal(uint64(17)))
		Expect(r.PhysicalAddress).
			To(Equal(uint64(r.FrameNumber)*4096 + 17))
		Expect(k.ProcessPageTable(pid)[2].Modified).To(BeTrue())
		Expect(k.MemorySnapshot().Frames[r.FrameNumber].Modified).
			To(BeTrue())

		entries := k.SwapSnapshot()
		Expect(entries).To(HaveLen(1))
		Expect(entries[0].PID).To(Equal(pid))
		Expect(entries[0].PageNumber).To(Equal(2))
		Expect(entries[0].IsDirty).To(BeTrue())
	})

	It("should write a dirty victim back before reusing its frame", func() {
		k = builder.WithTotalFrames(1).Build("Kernel")
		engine2 := k.Engine()
		pid, _ := k.CreateWithMemory(0, 2, 1)
		_, err := k.WriteMemory(pid, 0)
		Expect(err).NotTo(HaveOccurred())

		r, err := k.AccessMemory(pid, 4096)

		Expect(err).NotTo(HaveOccurred())
		Expect(r.Victim.WasDirty).To(BeTrue())
		Expect(r.DiskOps.Write).NotTo(BeNil())
		Expect(r.HadDiskIO).To(BeTrue())
		Expect(r.IOTime).To(Equal(sim.VTimeInSec(1.5)))
		Expect(k.DiskStats().DirtyWrites).To(Equal(1))
		Expect(engine2).To(BeIdenticalTo(engine))
	})

	It("should mark a written page that is already loaded", func() {
		pid, _ := k.CreateWithMemory(0, 4, 1)

		r, err := k.WriteMemory(pid, 10)

		Expect(err).NotTo(HaveOccurred())
		Expect(r.PageFault).To(BeFalse())
		Expect(r.PhysicalAddress).To(Equal(uint64(r.FrameNumber)*4096 + 10))
		Expect(k.ProcessMemoryStats(pid).ModifiedPages).To(Equal(1))
	})

	It("should reject an address beyond the process", func() {
		pid, _ := k.CreateWithMemory(0, 2, 0)

		_, err := k.AccessMemory(pid, 2*4096)

		Expect(err).To(MatchError(vm.ErrInvalidPage))
		p, _ := k.Process(pid)
		Expect(p.Memory.MemoryAccesses).To(Equal(0))
	})

	It("should leave memory untouched when the disk fails", func() {
		k = builder.
			WithTotalFrames(1).
			WithSwapFailurePolicy(failingDisk{op: swap.OpWrite}).
			Build("Kernel")
		pid, _ := k.CreateWithMemory(0, 2, 1)
		_, _ = k.WriteMemory(pid, 0)

		r, err := k.AccessMemory(pid, 4096)

		Expect(err).NotTo(HaveOccurred())
		Expect(r.PageFault).To(BeTrue())
		Expect(r.Success).To(BeFalse())
		Expect(r.Err).To(MatchError(swap.ErrIOFailure))

		frame := k.MemorySnapshot().Frames[0]
		Expect(frame.Owner).To(Equal(pid))
		Expect(frame.PageNumber).To(Equal(0))
		Expect(frame.Modified).To(BeTrue())
		Expect(k.ClockState().ClockPointer).To(Equal(0))
		Expect(k.ProcessPageTable(pid)[0].Present).To(BeTrue())
		Expect(k.ProcessPageTable(pid)[1].Present).To(BeFalse())
	})

	Context("while a process runs", func() {
		run := func(pid vm.PID) *AccessTask {
			_, err := k.Admit(pid, "")
			Expect(err).NotTo(HaveOccurred())
			_, task, err := k.AssignCPU(pid, "")
			Expect(err).NotTo(HaveOccurred())
			Expect(task).NotTo(BeNil())
			Expect(task.Planned).To(BeNumerically(">=", 2))
			Expect(task.Planned).To(BeNumerically("<=", 4))

			return task
		}

		It("should make a burst of hits", func() {
			k = builder.WithFaultBias(0).Build("Kernel")
			pid, _ := k.CreateWithMemory(0, 4, 4)
			task := run(pid)

			done, err := k.Await(task, 10)

			Expect(err).NotTo(HaveOccurred())
			Expect(done).To(BeTrue())
			Expect(task.Results()).To(HaveLen(task.Planned))
			Expect(task.Abandoned()).To(Equal(0))
			for i, r := range task.Results() {
				Expect(r.PageFault).To(BeFalse())
				Expect(float64(r.Time)).To(BeNumerically("~",
					0.2+0.1*float64(i), 1e-9))
			}

			p, _ := k.Process(pid)
			Expect(p.State).To(Equal(process.Running))
			Expect(p.Memory.MemoryAccesses).To(Equal(task.Planned))
			Expect(p.Memory.PageFaults).To(Equal(0))
			Eventually(task.Wait()).Should(BeClosed())
		})

		It("should wait for the disk on a fault", func() {
			k = builder.WithFaultBias(1).Build("Kernel")
			pid, _ := k.CreateWithMemory(0, 4, 0)
			task := run(pid)

			done, err := k.Await(task, 10)

			Expect(err).NotTo(HaveOccurred())
			Expect(done).To(BeTrue())
			results := task.Results()
			Expect(results).To(HaveLen(1))
			Expect(results[0].PageFault).To(BeTrue())
			Expect(task.Abandoned()).To(Equal(task.Planned - 1))

			page := results[0].PageNumber
			p, _ := k.Process(pid)
			Expect(p.History[2].To).To(Equal(process.Waiting))
			Expect(p.History[2].Cause).
				To(Equal(fmt.Sprintf("disk-io-page-%d", page)))
			Expect(p.Memory.LoadedPages).To(Equal(1))

			Expect(engine.RunUntil(10)).To(Succeed())
			p, _ = k.Process(pid)
			Expect(p.State).To(Equal(process.Ready))
			Expect(p.History[3].Cause).
				To(Equal(fmt.Sprintf("disk-io-complete-page-%d", page)))
		})

		It("should take the disk time before completing", func() {
			k = builder.WithFaultBias(1).WithTotalFrames(1).Build("Kernel")
			other, _ := k.CreateWithMemory(0, 1, 1)
			_, _ = k.WriteMemory(other, 0)
			pid, _ := k.CreateWithMemory(0, 2, 0)
			task := run(pid)

			_, err := k.Await(task, 10)
			Expect(err).NotTo(HaveOccurred())
			Expect(task.Results()[0].IOTime).To(Equal(sim.VTimeInSec(1.5)))

			Expect(engine.RunUntil(1.6)).To(Succeed())
			p, _ := k.Process(pid)
			Expect(p.State).To(Equal(process.Waiting))

			Expect(engine.RunUntil(1.8)).To(Succeed())
			p, _ = k.Process(pid)
			Expect(p.State).To(Equal(process.Ready))
		})

		It("should not complete a fault after the process moved on", func() {
			k = builder.WithFaultBias(1).WithTotalFrames(1).Build("Kernel")
			other, _ := k.CreateWithMemory(0, 1, 1)
			_, _ = k.WriteMemory(other, 0)
			pid, _ := k.CreateWithMemory(0, 2, 0)
			task := run(pid)
			_, err := k.Await(task, 10)
			Expect(err).NotTo(HaveOccurred())

			_, err = k.IOComplete(pid, "")
			Expect(err).NotTo(HaveOccurred())
			_, err = k.RequestIO(pid, "")
			Expect(err).To(MatchError(process.ErrInvalidTransition))
			_, _, err = k.AssignCPU(pid, "")
			Expect(err).NotTo(HaveOccurred())
			_, err = k.RequestIO(pid, "")
			Expect(err).NotTo(HaveOccurred())

			Expect(engine.RunUntil(5)).To(Succeed())
			p, _ := k.Process(pid)
			Expect(p.State).To(Equal(process.Waiting))
		})

		It("should abandon the burst on preemption", func() {
			k = builder.WithFaultBias(0).Build("Kernel")
			pid, _ := k.CreateWithMemory(0, 4, 4)
			task := run(pid)
			Expect(engine.RunUntil(0.25)).To(Succeed())

			_, err := k.Preempt(pid, "")
			Expect(err).NotTo(HaveOccurred())

			Expect(task.Done()).To(BeTrue())
			Expect(task.Results()).To(HaveLen(1))
			Expect(task.Abandoned()).To(Equal(task.Planned - 1))
			Expect(engine.RunUntil(5)).To(Succeed())
			p, _ := k.Process(pid)
			Expect(p.Memory.MemoryAccesses).To(Equal(1))
		})

		It("should abandon the burst of a process that is gone", func() {
			k = builder.WithFaultBias(0).Build("Kernel")
			pid, _ := k.CreateWithMemory(0, 4, 4)
			task := run(pid)

			k.Lock()
			delete(k.processes, pid)
			k.Unlock()

			Expect(func() { _ = engine.RunUntil(5) }).NotTo(Panic())
			Expect(task.Done()).To(BeTrue())
			Expect(task.Results()).To(BeEmpty())
			Expect(task.Abandoned()).To(Equal(task.Planned))
		})

		It("should give up waiting after the timeout", func() {
			k = builder.WithAccessDelay(20).Build("Kernel")
			pid, _ := k.Create(0)
			task := run(pid)

			done, err := k.Await(task, 5)

			Expect(err).NotTo(HaveOccurred())
			Expect(done).To(BeFalse())
			Expect(engine.CurrentTime()).To(Equal(sim.VTimeInSec(5)))
		})
	})
})
