package pagefault

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/osim/mem/vm"
)

var _ = Describe("ClockVictimFinder", func() {
	var (
		frames *vm.FrameTable
		finder *ClockVictimFinder
	)

	BeforeEach(func() {
		frames = vm.NewFrameTable(4, 4096)
		for i := 0; i < 4; i++ {
			Expect(frames.Allocate(i, 1, i)).To(Succeed())
		}
		finder = NewClockVictimFinder()
	})

	clearUse := func(frame int) {
		use := false
		Expect(frames.UpdateBits(frame, vm.BitUpdate{Use: &use})).
			To(Succeed())
	}

	It("should pick the frame under the pointer if its use bit is clear", func() {
		Expect(frames.SetClockPointer(2)).To(Succeed())
		clearUse(2)

		v, found := finder.FindVictim(frames)

		Expect(found).To(BeTrue())
		Expect(v.Frame).To(Equal(2))
		Expect(v.Attempts).To(Equal(0))
		Expect(v.Steps).To(HaveLen(2))
		Expect(v.Steps[0].Action).To(Equal(StepEvaluating))
		Expect(v.Steps[1].Action).To(Equal(StepVictimFound))
	})

	It("should give second chances until a clear use bit", func() {
		Expect(frames.SetClockPointer(1)).To(Succeed())
		clearUse(3)

		v, found := finder.FindVictim(frames)

		Expect(found).To(BeTrue())
		Expect(v.Frame).To(Equal(3))
		Expect(v.Attempts).To(Equal(2))

		f, _ := frames.Frame(1)
		Expect(f.Use).To(BeFalse())
		f, _ = frames.Frame(2)
		Expect(f.Use).To(BeFalse())
		f, _ = frames.Frame(0)
		Expect(f.Use).To(BeTrue())
	})

	It("should come back to the start when every use bit is set", func() {
		Expect(frames.SetClockPointer(1)).To(Succeed())

		v, found := finder.FindVictim(frames)

		Expect(found).To(BeTrue())
		Expect(v.Frame).To(Equal(1))
		Expect(v.Attempts).To(BeNumerically(">=", 4))

		actions := []StepAction{}
		for _, s := range v.Steps {
			actions = append(actions, s.Action)
		}
		Expect(actions).To(HaveLen(10))
		Expect(actions[1]).To(Equal(StepSecondChance))
		Expect(actions[9]).To(Equal(StepVictimFound))
	})

	It("should not move the clock pointer", func() {
		Expect(frames.SetClockPointer(1)).To(Succeed())

		finder.FindVictim(frames)

		Expect(frames.ClockPointer()).To(Equal(1))
	})
})
