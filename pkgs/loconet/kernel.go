// Package loconet implements the LocoNet command station kernel: the
// state machine that owns a physical or simulated bus connection, paces
// outbound frames through priority queues, tracks locomotive slot
// bindings, and fans out decoder/input/output/identification changes to
// the rest of the application.
package loconet

import (
	"fmt"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/keskad/traintastic-go/pkgs/loconet/message"
	"github.com/keskad/traintastic-go/pkgs/wire"
)

// Priority selects which of the three send queues a message is placed
// into. The kernel always drains HighPriority before NormalPriority
// before LowPriority.
type Priority int

const (
	HighPriority Priority = iota
	NormalPriority
	LowPriority
	numPriorities
)

const (
	echoTimeout     = 250 * time.Millisecond
	responseTimeout = 1000 * time.Millisecond
)

// DecoderController is the minimal surface the kernel needs from the
// application's decoder registry: resolving a slot's bound loco address
// to the decoder object whose function/speed state should be updated.
type DecoderController interface {
	DecoderChanged(address uint16, speed uint8, direction message.Direction, functions [29]bool)
}

// InputController receives sensor (OPC_INPUT_REP) state changes.
type InputController interface {
	InputChanged(address uint16, value bool)
}

// OutputController receives accessory decoder (OPC_SW_REQ-originated)
// state changes observed on the bus from other throttles.
type OutputController interface {
	OutputChanged(address uint16, thrown bool)
}

// IdentificationController receives RailCom/MultiSense transponder
// detection events.
type IdentificationController interface {
	IdentificationChanged(sensorAddress uint16, transponderAddress uint16, present bool, direction message.Direction)
}

// Config is the set of user-adjustable kernel behaviors. pkgs/config has
// no fields for it; callers build it directly.
type Config struct {
	// ScanOnConnect makes Start queue an RQ_SL_DATA request for every
	// locomotive slot (1-119) at low priority, in addition to binding
	// slots lazily on demand.
	ScanOnConnect bool
	// FastClockSyncInterval is stored but not used: the kernel sends no
	// fast-clock frames and does not track fast-clock frames it receives.
	FastClockSyncInterval time.Duration
}

// Kernel drives a single command station connection. Its mutable state
// below is guarded by mu and reached only through the methods in this
// package, which run on the caller's goroutine, the read-loop goroutine
// and the echo/response timer goroutines alike. It keeps the single
// in-flight-frame, no auto-retransmit discipline of the real bus.
type Kernel struct {
	logID      string
	simulation bool
	transport  wire.Transport
	handler    *wire.Handler
	cfg        Config

	mu sync.Mutex

	sendQueue            [numPriorities]sendQueue
	sentMessagePriority  Priority
	waitingForEcho       bool
	waitingForResponse   bool
	echoTimer            *time.Timer
	responseTimer        *time.Timer

	globalPower   triState
	emergencyStop triState

	fastClock struct {
		multiplier uint8
		hour       uint8
		minute     uint8
	}
	fastClockMaster bool

	lncv lncvSession

	slots               map[uint8]*locoSlot
	addressToSlot       map[uint16]uint8
	pendingSlotMessages map[uint16][]message.Message
	pendingBuildersMap  map[uint16][]func(slot uint8) message.Message

	inputValues  map[uint16]bool
	outputValues map[uint16]bool

	decoderController        DecoderController
	inputController           InputController
	outputController          OutputController
	identificationController IdentificationController

	onGlobalPowerChanged func(on bool)
	onIdle               func()
	onLNCVReadResponse   func(ok bool, lncv uint16, value uint16)

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// New builds a Kernel bound to the given transport. The kernel does not
// open the transport or start its IO loop until Start is called.
func New(logID string, transport wire.Transport, cfg Config, simulation bool) *Kernel {
	k := &Kernel{
		logID:               logID,
		simulation:          simulation,
		transport:           transport,
		cfg:                 cfg,
		slots:               make(map[uint8]*locoSlot),
		addressToSlot:       make(map[uint16]uint8),
		pendingSlotMessages: make(map[uint16][]message.Message),
		inputValues:         make(map[uint16]bool),
		outputValues:        make(map[uint16]bool),
		stopCh:              make(chan struct{}),
	}
	k.handler = wire.NewHandler(message.WireSizer{}, k.onFrame, k.onDropped)
	return k
}

func (k *Kernel) SetDecoderController(c DecoderController)               { k.decoderController = c }
func (k *Kernel) SetInputController(c InputController)                   { k.inputController = c }
func (k *Kernel) SetOutputController(c OutputController)                 { k.outputController = c }
func (k *Kernel) SetIdentificationController(c IdentificationController) { k.identificationController = c }
func (k *Kernel) SetOnGlobalPowerChanged(f func(on bool))                 { k.onGlobalPowerChanged = f }
func (k *Kernel) SetOnIdle(f func())                                     { k.onIdle = f }
func (k *Kernel) SetOnLNCVReadResponse(f func(ok bool, lncv uint16, value uint16)) {
	k.onLNCVReadResponse = f
}

// Start opens the transport and begins the read loop. Returns once the
// transport reports it is open; frame processing continues in the
// background until Stop is called.
func (k *Kernel) Start() error {
	if err := k.transport.Open(); err != nil {
		return fmt.Errorf("loconet[%s]: cannot open transport: %w", k.logID, err)
	}

	if k.cfg.ScanOnConnect {
		for s := uint8(message.SlotLocoMin); s <= message.SlotLocoMax; s++ {
			k.Send(message.RequestSlotData(s), LowPriority)
		}
	}

	k.wg.Add(1)
	go k.readLoop()
	return nil
}

// Stop closes the transport and waits for the read loop to exit.
func (k *Kernel) Stop() error {
	close(k.stopCh)
	err := k.transport.Close()
	k.wg.Wait()
	return err
}

func (k *Kernel) readLoop() {
	defer k.wg.Done()
	buf := make([]byte, 1024)
	for {
		select {
		case <-k.stopCh:
			return
		default:
		}
		n, err := k.transport.Read(buf)
		if err != nil {
			log.WithError(err).WithField("logId", k.logID).Warn("loconet: transport read error")
			return
		}
		if n > 0 {
			k.handler.Receive(buf[:n])
		}
	}
}

func (k *Kernel) onDropped(n int) {
	log.WithField("logId", k.logID).WithField("bytes", n).Debug("loconet: dropped invalid prefix bytes")
}

// Send enqueues msg on the given priority queue. If the kernel is
// currently idle (no frame in flight), it is written immediately;
// otherwise it waits its turn behind higher-priority traffic. It returns
// false when the three queues together would exceed sendQueueCapacity.
func (k *Kernel) Send(msg message.Message, priority Priority) bool {
	k.mu.Lock()
	total := 0
	for p := range k.sendQueue {
		total += k.sendQueue[p].bytes
	}
	ok := total+len(msg) <= sendQueueCapacity && k.sendQueue[priority].append(msg)
	idle := !k.waitingForEcho && !k.waitingForResponse
	k.mu.Unlock()

	if !ok {
		log.WithField("logId", k.logID).WithField("priority", priority).
			Warn("loconet: send queue full, dropping message")
		return false
	}
	if idle {
		k.sendNextMessage()
	}
	return true
}

// SendToAddress sends a slot-targeted message, routing it through the
// address->slot binding: if no slot is bound yet, it queues the message
// and issues a LOCO_ADR request to obtain one.
func (k *Kernel) SendToAddress(address uint16, build func(slot uint8) message.Message) {
	slot := k.getLocoSlotByAddress(address)
	if slot != message.SlotUnknown {
		k.Send(build(slot), NormalPriority)
		return
	}
	k.pendingBuilders(address, build)
	k.Send(message.LocoAdr(address), HighPriority)
}

// pendingBuilders stashes the builder function so it can be invoked once
// the slot binding resolves; kept separate from pendingSlotMessages
// (which holds fully-built messages for other callers) to avoid forcing
// every caller through the builder pattern.
func (k *Kernel) pendingBuilders(address uint16, build func(slot uint8) message.Message) {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.pendingBuildersMap == nil {
		k.pendingBuildersMap = make(map[uint16][]func(slot uint8) message.Message)
	}
	k.pendingBuildersMap[address] = append(k.pendingBuildersMap[address], build)
}

func (k *Kernel) sendNextMessage() {
	k.mu.Lock()
	if k.waitingForEcho || k.waitingForResponse {
		k.mu.Unlock()
		return
	}
	var msg message.Message
	var priority Priority
	found := false
	for p := HighPriority; p < numPriorities; p++ {
		if !k.sendQueue[p].empty() {
			msg = k.sendQueue[p].front()
			priority = p
			found = true
			break
		}
	}
	if !found {
		k.mu.Unlock()
		return
	}
	k.sentMessagePriority = priority
	k.waitingForEcho = true
	k.mu.Unlock()

	log.WithField("logId", k.logID).WithField("frame", msg.String()).Debug("loconet: send")
	if _, err := k.transport.Write(msg); err != nil {
		log.WithError(err).WithField("logId", k.logID).Warn("loconet: write failed")
		k.mu.Lock()
		k.waitingForEcho = false
		k.mu.Unlock()
		return
	}

	k.mu.Lock()
	k.echoTimer = time.AfterFunc(echoTimeout, k.echoTimerExpired)
	k.mu.Unlock()
}

func (k *Kernel) echoTimerExpired() {
	log.WithField("logId", k.logID).Warn("loconet: echo timeout, no loopback observed")
	k.mu.Lock()
	k.waitingForEcho = false
	k.sendQueue[k.sentMessagePriority].pop()
	k.mu.Unlock()
	k.sendNextMessage()
}

func (k *Kernel) responseTimerExpired() {
	log.WithField("logId", k.logID).Debug("loconet: response timeout, proceeding without reply")
	k.mu.Lock()
	k.waitingForResponse = false
	k.sendQueue[k.sentMessagePriority].pop()
	k.mu.Unlock()
	k.sendNextMessage()
}

// onFrame is invoked synchronously by the wire.Handler for every
// validated frame, in the kernel's own read-loop goroutine.
func (k *Kernel) onFrame(frame []byte) {
	msg := message.Message(frame)
	log.WithField("logId", k.logID).WithField("frame", msg.String()).Debug("loconet: receive")

	k.mu.Lock()
	lastSent := k.lastSentLocked()
	echoMatches := k.waitingForEcho && lastSent != nil && string(*lastSent) == string(msg)
	if echoMatches {
		k.waitingForEcho = false
		if k.echoTimer != nil {
			k.echoTimer.Stop()
		}
		if message.HasResponse(*lastSent) {
			k.waitingForResponse = true
			k.responseTimer = time.AfterFunc(responseTimeout, k.responseTimerExpired)
		} else {
			k.sendQueue[k.sentMessagePriority].pop()
		}
	}
	waitingResponse := k.waitingForResponse
	var pendingRequest message.Message
	if waitingResponse && lastSent != nil {
		pendingRequest = *lastSent
	}
	k.mu.Unlock()

	if waitingResponse && message.IsValidResponse(pendingRequest, msg) {
		k.mu.Lock()
		k.waitingForResponse = false
		if k.responseTimer != nil {
			k.responseTimer.Stop()
		}
		k.sendQueue[k.sentMessagePriority].pop()
		k.mu.Unlock()
	}

	k.dispatch(msg)

	if echoMatches && !message.HasResponse(msg) {
		k.sendNextMessage()
	}
	if waitingResponse && message.IsValidResponse(pendingRequest, msg) {
		k.sendNextMessage()
	}
}

func (k *Kernel) lastSentLocked() *message.Message {
	q := &k.sendQueue[k.sentMessagePriority]
	if q.empty() {
		return nil
	}
	m := q.front()
	return &m
}

// dispatch routes a validated inbound frame by opcode to the relevant
// state update and controller callback.
func (k *Kernel) dispatch(msg message.Message) {
	switch msg.OpCode() {
	case message.OpGPOn:
		k.setGlobalPower(true)
	case message.OpGPOff:
		k.setGlobalPower(false)
	case message.OpIdle:
		if k.onIdle != nil {
			k.onIdle()
		}
	case message.OpSlRdData:
		k.handleSlotReadData(message.AsSlotReadData(msg))
	case message.OpLocoSpd:
		k.handleLocoSpd(message.AsLocoSpd(msg))
	case message.OpLocoDirF:
		k.handleLocoDirF(message.AsLocoDirF(msg))
	case message.OpLocoSnd:
		k.handleLocoSnd(message.AsLocoSnd(msg))
	case message.OpLocoF9F12:
		k.handleLocoF9F12(message.AsLocoF9F12(msg))
	case message.OpD4:
		k.handleD4(msg)
	case message.OpInputRep:
		k.handleInputRep(message.AsInputRep(msg))
	case message.OpSwReq:
		k.handleSwitchRequest(message.AsSwitchRequest(msg))
	case message.OpMultiSense:
		k.handleMultiSense(message.AsMultiSense(msg))
	case message.OpMultiSenseLong:
		k.handleMultiSenseLong(message.AsMultiSenseLong(msg))
	case message.OpPeerXfer:
		k.handleLNCVPeerXfer(message.AsPeerXfer(msg))
	}
}

func (k *Kernel) setGlobalPower(on bool) {
	k.mu.Lock()
	changed := k.globalPower != triFrom(on)
	k.globalPower = triFrom(on)
	k.mu.Unlock()
	if changed && k.onGlobalPowerChanged != nil {
		k.onGlobalPowerChanged(on)
	}
}

// SetState requests the command station turn track power and
// idle/run-stop state on or off.
func (k *Kernel) SetState(powerOn, run bool) {
	if powerOn {
		k.Send(message.GlobalPowerOn(), HighPriority)
	} else {
		k.Send(message.GlobalPowerOff(), HighPriority)
	}
	if !run {
		k.Send(message.Idle(), HighPriority)
	}
}

func (k *Kernel) handleSlotReadData(v message.SlotReadDataView) {
	slot := v.Slot()
	address := v.Address()

	if v.IsFree() {
		k.clearLocoSlot(slot)
		return
	}

	k.bindSlot(slot, address)
	s := k.getLocoSlot(slot)
	s.applySlotReadData(v)

	k.mu.Lock()
	builders := k.pendingBuildersMap[address]
	delete(k.pendingBuildersMap, address)
	k.mu.Unlock()
	for _, build := range builders {
		k.Send(build(slot), NormalPriority)
	}
	for _, msg := range k.drainPendingSlotMessages(address) {
		if msg != nil {
			k.Send(msg, NormalPriority)
		}
	}

	k.notifyDecoderChanged(slot)
}

func (k *Kernel) notifyDecoderChanged(slot uint8) {
	if k.decoderController == nil {
		return
	}
	s := k.getLocoSlot(slot)
	var fns [29]bool
	for i, v := range s.functions {
		fns[i] = v == triTrue
	}
	k.decoderController.DecoderChanged(s.address, s.speed, s.direction, fns)
}

func (k *Kernel) handleLocoSpd(v message.LocoSpdView) {
	s := k.getLocoSlot(v.Slot())
	k.mu.Lock()
	s.speed = v.Speed()
	k.mu.Unlock()
	k.notifyDecoderChanged(v.Slot())
}

func (k *Kernel) handleLocoDirF(v message.LocoDirFView) {
	s := k.getLocoSlot(v.Slot())
	k.mu.Lock()
	s.direction = v.Direction()
	for n := 0; n <= 4; n++ {
		s.functions[n] = triFrom(v.F(n))
	}
	k.mu.Unlock()
	k.notifyDecoderChanged(v.Slot())
}

func (k *Kernel) handleLocoSnd(v message.LocoSndView) {
	s := k.getLocoSlot(v.Slot())
	k.mu.Lock()
	for n := 5; n <= 8; n++ {
		s.functions[n] = triFrom(v.F(n))
	}
	k.mu.Unlock()
	k.notifyDecoderChanged(v.Slot())
}

func (k *Kernel) handleLocoF9F12(v message.LocoF9F12View) {
	s := k.getLocoSlot(v.Slot())
	k.mu.Lock()
	for n := 9; n <= 12; n++ {
		s.functions[n] = triFrom(v.F(n))
	}
	k.mu.Unlock()
	k.notifyDecoderChanged(v.Slot())
}

func (k *Kernel) handleD4(msg message.Message) {
	if len(msg) < 4 {
		return
	}
	switch msg[3] {
	case message.D4SubF13F19:
		v := message.AsLocoF13F19(msg)
		s := k.getLocoSlot(v.Slot())
		k.mu.Lock()
		for n := 13; n <= 19; n++ {
			s.functions[n] = triFrom(v.F(n))
		}
		k.mu.Unlock()
		k.notifyDecoderChanged(v.Slot())
	case message.D4SubF21F27:
		v := message.AsLocoF21F27(msg)
		s := k.getLocoSlot(v.Slot())
		k.mu.Lock()
		for n := 21; n <= 27; n++ {
			s.functions[n] = triFrom(v.F(n))
		}
		k.mu.Unlock()
		k.notifyDecoderChanged(v.Slot())
	case message.D4SubF12F20F28:
		v := message.AsLocoF12F20F28(msg)
		s := k.getLocoSlot(v.Slot())
		k.mu.Lock()
		s.functions[12] = triFrom(v.F12())
		s.functions[20] = triFrom(v.F20())
		s.functions[28] = triFrom(v.F28())
		k.mu.Unlock()
		k.notifyDecoderChanged(v.Slot())
	}
}

func (k *Kernel) handleInputRep(v message.InputRepView) {
	if v.IsSwitchInput() {
		return
	}
	address := v.Address()
	k.mu.Lock()
	k.inputValues[address] = v.Value()
	k.mu.Unlock()
	if k.inputController != nil {
		k.inputController.InputChanged(address, v.Value())
	}
}

func (k *Kernel) handleSwitchRequest(v message.SwitchRequestView) {
	address := v.Address()
	k.mu.Lock()
	k.outputValues[address] = v.On() && v.Dir()
	k.mu.Unlock()
	if k.outputController != nil {
		k.outputController.OutputChanged(address, v.Dir())
	}
}

func (k *Kernel) handleMultiSense(v message.MultiSenseView) {
	if !v.IsTransponder() || k.identificationController == nil {
		return
	}
	k.identificationController.IdentificationChanged(
		v.SensorAddress(), v.TransponderAddress(), v.IsPresent(), message.DirectionUnknown)
}

func (k *Kernel) handleMultiSenseLong(v message.MultiSenseLongView) {
	if !v.IsTransponder() || k.identificationController == nil {
		return
	}
	k.identificationController.IdentificationChanged(
		v.SensorAddress(), v.TransponderAddress(), v.IsPresent(), v.TransponderDirection())
}

// DecoderChanged pushes a decoder's speed, direction and F0-F4 onto the
// bus: every call sends both an OPC_LOCO_SPD and an OPC_LOCO_DIRF frame,
// whichever of them changed. F5-F28 in functions are not sent.
func (k *Kernel) DecoderChanged(address uint16, speed uint8, direction message.Direction, functions [29]bool) {
	k.SendToAddress(address, func(slot uint8) message.Message {
		return message.LocoSpd(slot, speed)
	})
	k.SendToAddress(address, func(slot uint8) message.Message {
		return message.LocoDirF(slot, direction, functions[0], functions[1], functions[2], functions[3], functions[4])
	})
}

// SetOutput requests an accessory decoder change at the given address.
func (k *Kernel) SetOutput(address uint16, thrown bool) bool {
	return k.Send(message.SwitchRequest(address, thrown), NormalPriority)
}
