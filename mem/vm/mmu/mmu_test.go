package mmu

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/osim/mem/swap"
	"github.com/sarchlab/osim/mem/vm"
	"github.com/sarchlab/osim/mem/vm/pagefault"
	"github.com/sarchlab/osim/sim"
)

var _ = Describe("MMU", func() {
	var (
		engine *sim.SerialEngine
		mmu    *Comp
	)

	BeforeEach(func() {
		engine = sim.NewSerialEngine()
		mmu = MakeBuilder().
			WithTimeTeller(engine).
			WithNumFrames(8).
			WithPageSize(4096).
			Build("MMU")
	})

	It("should panic on invalid parameters", func() {
		Expect(func() {
			MakeBuilder().WithTimeTeller(engine).WithNumFrames(0).Build("MMU")
		}).To(Panic())
		Expect(func() {
			MakeBuilder().WithTimeTeller(engine).WithPageSize(0).Build("MMU")
		}).To(Panic())
		Expect(func() { MakeBuilder().Build("MMU") }).To(Panic())
	})

	Context("registration", func() {
		It("should refuse duplicates", func() {
			Expect(mmu.RegisterProcess(1, 4)).To(Succeed())
			Expect(mmu.RegisterProcess(1, 4)).
				To(MatchError(ErrAlreadyRegistered))
		})

		It("should create a table with all pages absent", func() {
			Expect(mmu.RegisterProcess(1, 4)).To(Succeed())

			pt := mmu.PageTable(1)
			Expect(pt).To(HaveLen(4))
			for _, e := range pt {
				Expect(e.Present).To(BeFalse())
			}
		})

		It("should return nil for unknown processes", func() {
			Expect(mmu.PageTable(9)).To(BeNil())
			Expect(mmu.ProcessMemoryStats(9)).To(BeNil())
			Expect(mmu.UnregisterProcess(9)).
				To(MatchError(vm.ErrProcessNotFound))
		})
	})

	Context("translation", func() {
		BeforeEach(func() {
			Expect(mmu.RegisterProcess(1, 4)).To(Succeed())
			r, err := mmu.AllocateFramesForProcess(1, 2)
			Expect(err).NotTo(HaveOccurred())
			Expect(r.Allocated).To(Equal(2))
		})

		It("should translate a resident page", func() {
			t, err := mmu.TranslateAddress(1, 4096+100)

			Expect(err).NotTo(HaveOccurred())
			Expect(t.PageFault).To(BeFalse())
			Expect(t.PageNumber).To(Equal(1))
			Expect(t.Offset).To(Equal(uint64(100)))
			Expect(t.FrameNumber).To(Equal(1))
			Expect(t.PhysicalAddress).To(Equal(uint64(4096 + 100)))
		})

		It("should report a page fault on an absent page", func() {
			t, err := mmu.TranslateAddress(1, 3*4096)

			Expect(err).NotTo(HaveOccurred())
			Expect(t.PageFault).To(BeTrue())
			Expect(t.PageNumber).To(Equal(3))
			Expect(t.FrameNumber).To(Equal(vm.NoFrame))
		})

		It("should reject addresses beyond the process", func() {
			_, err := mmu.TranslateAddress(1, 4*4096)
			Expect(err).To(MatchError(vm.ErrInvalidPage))
		})

		It("should reject unknown processes", func() {
			_, err := mmu.TranslateAddress(2, 0)
			Expect(err).To(MatchError(vm.ErrProcessNotFound))
		})

		It("should set the use bit on access", func() {
			use := false
			Expect(mmu.frames.UpdateBits(0, vm.BitUpdate{Use: &use})).
				To(Succeed())

			_, err := mmu.TranslateAddress(1, 10)
			Expect(err).NotTo(HaveOccurred())

			f, _ := mmu.frames.Frame(0)
			Expect(f.Use).To(BeTrue())
		})

		It("should mark pages modified", func() {
			Expect(mmu.MarkPageAsModified(1, 0)).To(Succeed())

			Expect(mmu.PageTable(1)[0].Modified).To(BeTrue())
			Expect(mmu.MemorySnapshot().Frames[0].Modified).To(BeTrue())
			Expect(mmu.ProcessMemoryStats(1).ModifiedPages).To(Equal(1))
			Expect(mmu.MarkPageAsModified(1, 9)).
				To(MatchError(vm.ErrInvalidPage))
		})
	})

	Context("when memory is full", func() {
		BeforeEach(func() {
			for pid := vm.PID(1); pid <= 4; pid++ {
				Expect(mmu.RegisterProcess(pid, 4)).To(Succeed())
				_, err := mmu.AllocateFramesForProcess(pid, 2)
				Expect(err).NotTo(HaveOccurred())
			}
			Expect(mmu.IsMemoryFull()).To(BeTrue())
			Expect(mmu.RegisterProcess(5, 4)).To(Succeed())
		})

		It("should give a new process no frames", func() {
			r, err := mmu.AllocateFramesForProcess(5, 2)

			Expect(err).NotTo(HaveOccurred())
			Expect(r.Allocated).To(Equal(0))
		})

		It("should replace a page and update the victim table", func() {
			t, err := mmu.TranslateAddress(5, 0)
			Expect(err).NotTo(HaveOccurred())
			Expect(t.PageFault).To(BeTrue())

			r, err := mmu.HandlePageFault(5, 0)

			Expect(err).NotTo(HaveOccurred())
			Expect(r.Success).To(BeTrue())
			Expect(r.Replacement).To(BeTrue())
			Expect(r.Victim).NotTo(BeNil())

			victimTable := mmu.PageTable(r.Victim.PID)
			Expect(victimTable[r.Victim.PageNumber].Present).To(BeFalse())
			Expect(mmu.PageTable(5)[0].Present).To(BeTrue())
			Expect(mmu.PageTable(5)[0].FrameNumber).To(Equal(r.FrameNumber))
		})

		It("should return the same memory snapshot until something changes", func() {
			first := mmu.MemorySnapshot()
			Expect(mmu.MemorySnapshot()).To(Equal(first))

			first.Frames[0].Owner = 9
			first.Frames[0].Use = false
			Expect(mmu.MemorySnapshot().Frames[0].Owner).To(Equal(vm.PID(1)))
			Expect(mmu.MemorySnapshot().Frames[0].Use).To(BeTrue())

			beforeFault := mmu.MemorySnapshot()
			_, err := mmu.HandlePageFault(5, 0)
			Expect(err).NotTo(HaveOccurred())

			afterFault := mmu.MemorySnapshot()
			Expect(afterFault).NotTo(Equal(beforeFault))
			Expect(mmu.MemorySnapshot()).To(Equal(afterFault))
		})

		It("should keep page table use bits in step with the frames", func() {
			_, err := mmu.HandlePageFault(5, 0)
			Expect(err).NotTo(HaveOccurred())

			snapshot := mmu.Snapshot()
			for _, f := range snapshot.Memory.Frames {
				e := snapshot.PageTables[f.Owner][f.PageNumber]
				Expect(e.Present).To(BeTrue())
				Expect(e.FrameNumber).To(Equal(f.FrameNumber))
				Expect(e.Use).To(Equal(f.Use))
			}
		})

		It("should write back a modified victim", func() {
			for pid := vm.PID(1); pid <= 4; pid++ {
				Expect(mmu.MarkPageAsModified(pid, 0)).To(Succeed())
				Expect(mmu.MarkPageAsModified(pid, 1)).To(Succeed())
			}

			r, err := mmu.HandlePageFault(5, 0)

			Expect(err).NotTo(HaveOccurred())
			Expect(r.Victim.WasDirty).To(BeTrue())
			Expect(mmu.DiskStats().DirtyWrites).To(Equal(1))

			entry, found := mmu.SwapPageInfo(r.Victim.PID, r.Victim.PageNumber)
			Expect(found).To(BeTrue())
			Expect(entry.IsDirty).To(BeTrue())
			Expect(mmu.PageTable(r.Victim.PID)[r.Victim.PageNumber].Modified).
				To(BeFalse())
		})

		It("should hold every frame in exactly one page table", func() {
			for page := 0; page < 4; page++ {
				_, err := mmu.HandlePageFault(5, page)
				Expect(err).NotTo(HaveOccurred())
			}

			snapshot := mmu.Snapshot()
			owners := map[int]int{}
			for pid, table := range snapshot.PageTables {
				for _, e := range table {
					if e.Present {
						owners[e.FrameNumber]++
						f := snapshot.Memory.Frames[e.FrameNumber]
						Expect(f.Owner).To(Equal(pid))
						Expect(f.PageNumber).To(Equal(e.PageNumber))
					}
				}
			}

			Expect(owners).To(HaveLen(8))
			for _, n := range owners {
				Expect(n).To(Equal(1))
			}
		})

		It("should drop all the memory of an unregistered process", func() {
			_, err := mmu.HandlePageFault(5, 0)
			Expect(err).NotTo(HaveOccurred())

			Expect(mmu.UnregisterProcess(5)).To(Succeed())

			Expect(mmu.PageTable(5)).To(BeNil())
			Expect(mmu.MemorySnapshot().FreeFrames).To(Equal(1))
			for _, e := range mmu.SwapSnapshot() {
				Expect(e.PID).NotTo(Equal(vm.PID(5)))
			}
		})
	})

	It("should mark the page and swap dirty on a faulting write", func() {
		Expect(mmu.RegisterProcess(1, 4)).To(Succeed())

		r, err := mmu.HandlePageFaultAndMark(1, 2, true)

		Expect(err).NotTo(HaveOccurred())
		Expect(r.Success).To(BeTrue())
		Expect(mmu.PageTable(1)[2].Modified).To(BeTrue())
		entry, found := mmu.SwapPageInfo(1, 2)
		Expect(found).To(BeTrue())
		Expect(entry.IsDirty).To(BeTrue())
	})

	It("should free the frames of a process", func() {
		Expect(mmu.RegisterProcess(1, 4)).To(Succeed())
		_, err := mmu.AllocateFramesForProcess(1, 3)
		Expect(err).NotTo(HaveOccurred())

		freed, err := mmu.FreeFramesOfProcess(1)

		Expect(err).NotTo(HaveOccurred())
		Expect(freed).To(Equal(3))
		Expect(mmu.ProcessMemoryStats(1).PresentPages).To(Equal(0))
		Expect(mmu.MemorySnapshot().FreeFrames).To(Equal(8))
	})

	It("should forward hooks to the swap store and the fault handler", func() {
		var ops []swap.Operation
		var events []pagefault.ReplacementEvent
		mmu.AcceptDiskHook(sim.HookFunc(func(ctx sim.HookCtx) {
			ops = append(ops, ctx.Item.(swap.Operation))
		}))
		mmu.AcceptReplacementHook(sim.HookFunc(func(ctx sim.HookCtx) {
			events = append(events, ctx.Item.(pagefault.ReplacementEvent))
		}))
		Expect(mmu.RegisterProcess(1, 4)).To(Succeed())

		_, err := mmu.HandlePageFault(1, 0)

		Expect(err).NotTo(HaveOccurred())
		Expect(ops).To(HaveLen(1))
		Expect(ops[0].Type).To(Equal(swap.OpAllocate))
		Expect(events).To(HaveLen(1))
	})

	It("should forget everything on reset", func() {
		Expect(mmu.RegisterProcess(1, 4)).To(Succeed())
		_, err := mmu.HandlePageFault(1, 0)
		Expect(err).NotTo(HaveOccurred())

		mmu.Reset()

		Expect(mmu.IsRegistered(1)).To(BeFalse())
		Expect(mmu.ReplacementHistory()).To(BeEmpty())
		Expect(mmu.SwapSnapshot()).To(BeEmpty())
		Expect(mmu.DiskOperations()).To(BeEmpty())
		Expect(mmu.MemorySnapshot().FreeFrames).To(Equal(8))
	})
})
