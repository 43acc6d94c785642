package loconet

import (
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/keskad/traintastic-go/pkgs/loconet/message"
)

// Uhlenbrock LNCV programming sub-protocol, carried inside OPC_PEER_XFER
// frames. Only one session may be active on the bus at a time; modules
// only answer while addressed by moduleId/moduleAddress.
const (
	lncvCmdStart = 0x01
	lncvCmdRead  = 0x02
	lncvCmdWrite = 0x03
	lncvCmdStop  = 0x04
)

// lncvSession tracks the one allowed in-flight LNCV programming
// conversation.
type lncvSession struct {
	active         bool
	moduleID       uint16
	moduleAddress  uint16
}

// LNCVStart begins a programming session addressed to the given module
// identity. While a session is active, a further LNCVStart returns an
// error; LNCVStop ends the session.
func (k *Kernel) LNCVStart(moduleID, moduleAddress uint16) error {
	k.mu.Lock()
	if k.lncv.active {
		k.mu.Unlock()
		return fmt.Errorf("loconet[%s]: LNCV session already active for module %d", k.logID, k.lncv.moduleID)
	}
	k.lncv = lncvSession{active: true, moduleID: moduleID, moduleAddress: moduleAddress}
	k.mu.Unlock()

	log.WithField("logId", k.logID).WithFields(log.Fields{
		"moduleId": moduleID, "moduleAddress": moduleAddress,
	}).Debug("loconet: LNCV start")

	payload := lncvPayload(lncvCmdStart, moduleID, moduleAddress, 0, 0)
	k.Send(message.PeerXfer(payload), HighPriority)
	return nil
}

// LNCVRead requests the current value of lncv from the active session's
// module.
func (k *Kernel) LNCVRead(lncv uint16) error {
	k.mu.Lock()
	active := k.lncv.active
	moduleID, moduleAddress := k.lncv.moduleID, k.lncv.moduleAddress
	k.mu.Unlock()
	if !active {
		return fmt.Errorf("loconet[%s]: no active LNCV session", k.logID)
	}

	payload := lncvPayload(lncvCmdRead, moduleID, moduleAddress, lncv, 0)
	k.Send(message.PeerXfer(payload), HighPriority)
	return nil
}

// LNCVWrite writes value to lncv on the active session's module.
func (k *Kernel) LNCVWrite(lncv, value uint16) error {
	k.mu.Lock()
	active := k.lncv.active
	moduleID, moduleAddress := k.lncv.moduleID, k.lncv.moduleAddress
	k.mu.Unlock()
	if !active {
		return fmt.Errorf("loconet[%s]: no active LNCV session", k.logID)
	}

	payload := lncvPayload(lncvCmdWrite, moduleID, moduleAddress, lncv, value)
	k.Send(message.PeerXfer(payload), HighPriority)
	return nil
}

// LNCVStop ends the active session, releasing the bus for other
// programming conversations.
func (k *Kernel) LNCVStop() {
	k.mu.Lock()
	if !k.lncv.active {
		k.mu.Unlock()
		return
	}
	moduleID, moduleAddress := k.lncv.moduleID, k.lncv.moduleAddress
	k.lncv = lncvSession{}
	k.mu.Unlock()

	payload := lncvPayload(lncvCmdStop, moduleID, moduleAddress, 0, 0)
	k.Send(message.PeerXfer(payload), HighPriority)
}

func lncvPayload(cmd byte, moduleID, moduleAddress, lncv, value uint16) []byte {
	return []byte{
		cmd,
		byte(moduleID), byte(moduleID >> 8),
		byte(moduleAddress), byte(moduleAddress >> 8),
		byte(lncv), byte(lncv >> 8),
		byte(value), byte(value >> 8),
	}
}

// handleLNCVPeerXfer parses an inbound OPC_PEER_XFER frame as a possible
// LNCV read response and invokes the registered callback.
func (k *Kernel) handleLNCVPeerXfer(v message.PeerXferView) {
	data := v.Data()
	if len(data) < 9 || data[0] != lncvCmdRead {
		return
	}
	k.mu.Lock()
	active := k.lncv.active
	k.mu.Unlock()
	if !active || k.onLNCVReadResponse == nil {
		return
	}

	lncv := uint16(data[5]) | uint16(data[6])<<8
	value := uint16(data[7]) | uint16(data[8])<<8
	k.onLNCVReadResponse(true, lncv, value)
}
