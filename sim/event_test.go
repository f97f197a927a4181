package sim

import (
	"bytes"
	"log"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/mock/gomock"
)

type namedHandler struct {
	*ComponentBase
}

func (h namedHandler) Handle(Event) error {
	return nil
}

type pingEvent struct {
	*EventBase
}

var _ = Describe("EventBase", func() {
	AfterEach(func() {
		SetIDGenerator(&SequentialIDGenerator{})
	})

	It("should number events in order", func() {
		SetIDGenerator(&SequentialIDGenerator{})

		e1 := NewEventBase(1, nil)
		e2 := NewSecondaryEventBase(2, nil)

		Expect(e1.ID).To(Equal("1"))
		Expect(e2.ID).To(Equal("2"))
		Expect(e1.IsSecondary()).To(BeFalse())
		Expect(e2.IsSecondary()).To(BeTrue())
		Expect(e2.Time()).To(Equal(VTimeInSec(2)))
	})

	It("should generate unique ids in parallel mode", func() {
		SetIDGenerator(XIDGenerator{})

		e1 := NewEventBase(1, nil)
		e2 := NewEventBase(1, nil)

		Expect(e1.ID).To(HaveLen(20))
		Expect(e1.ID).NotTo(Equal(e2.ID))
	})
})

var _ = Describe("EventLogger", func() {
	It("should print events before they are handled", func() {
		buf := new(bytes.Buffer)
		logger := NewEventLogger(log.New(buf, "", 0))
		h := namedHandler{NewComponentBase("Kernel")}
		evt := pingEvent{NewEventBase(1.5, h)}

		logger.Func(HookCtx{Pos: HookPosAfterEvent, Item: evt})
		Expect(buf.String()).To(BeEmpty())

		logger.Func(HookCtx{Pos: HookPosBeforeEvent, Item: evt})
		Expect(buf.String()).To(Equal("1.5000 pingEvent -> Kernel\n"))
	})

	It("should print handlers without a name", func() {
		ctrl := gomock.NewController(GinkgoT())
		buf := new(bytes.Buffer)
		logger := NewEventLogger(log.New(buf, "", 0))
		evt := &pingEvent{NewEventBase(2, NewMockHandler(ctrl))}

		logger.Func(HookCtx{Pos: HookPosBeforeEvent, Item: evt})

		Expect(buf.String()).To(Equal("2.0000 pingEvent -> -\n"))
	})
})
