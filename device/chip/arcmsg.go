package chip

import (
	"time"

	"github.com/tenstorrent/tt-umd-sub002/ttumderr"
	"github.com/tenstorrent/tt-umd-sub002/ttumdmetrics"
)

// ARC scratch sub-register offsets, in bytes past ARCScratchBase. Not
// present in the retrieved source tree (only named, not numbered, by
// wormhole_arc_messenger.cpp); RES1's offset is kept consistent with
// device/protocol's existing arcHangCheckOffset (ARCScratchBase + 6*4), a
// register both packages independently peek at.
const (
	arcScratchRes0Offset   = 0 * 4
	arcScratchStatusOffset = 5 * 4
	arcScratchRes1Offset   = 6 * 4

	// arcMiscCntlTriggerBit is the misc-control register bit the ARC
	// firmware polls to learn a message is waiting.
	arcMiscCntlTriggerBit = 1 << 16

	// arcHangReadValue is the sentinel status value meaning firmware did
	// not recognize the message code, shared with the 0xFFFFFFFF bus-hang
	// canary device/protocol's PCIe variant checks for.
	arcHangReadValue = 0xFFFFFFFF

	arcPollInterval = 100 * time.Microsecond
)

// ArcMsg sends one ARC firmware message and returns its exit code plus up
// to numReturnValues 32-bit return values. Grounded directly on
// WormholeArcMessenger::send_message: pack arg0/arg1 and write them
// alongside the message code to the ARC scratch registers, trigger
// firmware by setting the misc-control register's bit 16, then poll the
// status register until its low 16 bits equal the message code's low
// byte (success)
// or it reads the hang sentinel (firmware did not recognize the code).
// Serialized by this chip's own ARC message lock, since a device has
// exactly one scratch-register mailbox and two interleaved callers would
// corrupt each other's arguments.
func (c *Chip) ArcMsg(msgCode uint32, arg0, arg1 uint16, timeout time.Duration, numReturnValues int) (exitCode uint32, returnValues []uint32, err error) {
	if msgCode&0xff00 != c.tbl.ArcMsgCommonPrefix {
		return 0, nil, ttumderr.New(ttumderr.KindInvalidArgument, "chip.ArcMsg", "message code does not carry the architecture's required prefix")
	}

	err = c.arcLock.WithLock(func() error {
		fwArg := uint32(arg0) | uint32(arg1)<<16
		if err := c.regs.Write32(c.tbl.ARCScratchBase+arcScratchRes0Offset, fwArg); err != nil {
			return err
		}
		if err := c.regs.Write32(c.tbl.ARCScratchBase+arcScratchStatusOffset, msgCode); err != nil {
			return err
		}

		misc, err := c.regs.Read32(c.tbl.ARCMiscCntlOffset)
		if err != nil {
			return err
		}
		if misc&arcMiscCntlTriggerBit != 0 {
			return ttumderr.New(ttumderr.KindHardwareHang, "chip.ArcMsg", "firmware interrupt trigger already pending")
		}
		if err := c.regs.Write32(c.tbl.ARCMiscCntlOffset, misc|arcMiscCntlTriggerBit); err != nil {
			return err
		}

		deadline := time.Now().Add(timeout)
		for {
			status, err := c.regs.Read32(c.tbl.ARCScratchBase + arcScratchStatusOffset)
			if err != nil {
				return err
			}
			if status&0xffff == msgCode&0xff {
				if numReturnValues >= 1 {
					v, err := c.regs.Read32(c.tbl.ARCScratchBase + arcScratchRes0Offset)
					if err != nil {
						return err
					}
					returnValues = append(returnValues, v)
				}
				if numReturnValues >= 2 {
					v, err := c.regs.Read32(c.tbl.ARCScratchBase + arcScratchRes1Offset)
					if err != nil {
						return err
					}
					returnValues = append(returnValues, v)
				}
				exitCode = status >> 16
				return nil
			}
			if status == arcHangReadValue {
				c.log.Warnf("chip: ARC firmware did not recognize message code %#x", msgCode)
				exitCode = arcHangReadValue
				return nil
			}
			if timeout != 0 && time.Now().After(deadline) {
				ttumdmetrics.ArcMsgTimeouts.Inc()
				return ttumderr.New(ttumderr.KindTimeout, "chip.ArcMsg", "timed out waiting for ARC firmware response")
			}
			time.Sleep(arcPollInterval)
		}
	})
	return exitCode, returnValues, err
}
