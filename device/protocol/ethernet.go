package protocol

// RemoteTunnel is the narrow seam the ethernet-tunneled protocol depends
// on: device/remote's command-frame tunnel packages a (core, addr, data)
// transaction as frames and ships them over a local ethernet worker
// core's L1 command queue. This package only needs the tunnel's
// transaction-level contract, not its frame format or queue
// bookkeeping.
type RemoteTunnel interface {
	SendWrite(core Core, addr uint64, data []byte) error
	SendRead(core Core, addr uint64, dst []byte) error
	WaitForFlush() error
}

// Ethernet is the remote-chip protocol variant: every write/read is
// tunneled through a RemoteTunnel rather than touching local PCIe or
// JTAG hardware directly, delegating to the remote tunnel for its
// frame/ack/flush contract.
type Ethernet struct {
	tunnel RemoteTunnel
}

// NewEthernet builds the ethernet-tunneled protocol over an already
// constructed remote tunnel for one target chip.
func NewEthernet(tunnel RemoteTunnel) *Ethernet {
	return &Ethernet{tunnel: tunnel}
}

func (e *Ethernet) IsRemote() bool { return true }

func (e *Ethernet) WriteToDevice(core Core, addr uint64, data []byte) error {
	return e.tunnel.SendWrite(core, addr, data)
}

func (e *Ethernet) ReadFromDevice(core Core, addr uint64, dst []byte) error {
	return e.tunnel.SendRead(core, addr, dst)
}

// WaitForNonMMIOFlush spin-waits until every outstanding command-queue
// entry this tunnel has posted is acknowledged by the remote firmware —
// required before any host read that must observe the effect of prior
// remote writes
func (e *Ethernet) WaitForNonMMIOFlush() error {
	return e.tunnel.WaitForFlush()
}
