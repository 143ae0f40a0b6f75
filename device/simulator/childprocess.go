package simulator

import (
	"os"
	"os/exec"
	"sync"
	"time"

	"golang.org/x/sys/unix"

	"github.com/tenstorrent/tt-umd-sub002/ttumderr"
)

// ChildProcessHost is the RTL/child-process flavor of simulator host: a
// subprocess running the actual simulator binary, reached over two
// anonymous pipes carrying framed request/response messages. Grounded on
// original_source/device/simulation/child_process_tt_sim_chip.cpp's
// parent/child protocol.
type ChildProcessHost struct {
	cmd *exec.Cmd

	mu        sync.Mutex
	toChild   *os.File
	fromChild *os.File
}

// StartChildProcess spawns the simulator binary at path, connecting a
// parent-to-child and child-to-parent pipe pair passed to the child as
// extra file descriptors 3 and 4 (matching the original's
// "<read_fd> <write_fd>" argv convention, renumbered here since Go's
// os/exec always starts extra files at fd 3).
func StartChildProcess(path string, args ...string) (*ChildProcessHost, error) {
	parentRead, childWrite, err := os.Pipe()
	if err != nil {
		return nil, ttumderr.Wrap(ttumderr.KindTransport, "simulator.StartChildProcess", err)
	}
	childRead, parentWrite, err := os.Pipe()
	if err != nil {
		parentRead.Close()
		childWrite.Close()
		return nil, ttumderr.Wrap(ttumderr.KindTransport, "simulator.StartChildProcess", err)
	}

	cmd := exec.Command(path, args...)
	cmd.ExtraFiles = []*os.File{childRead, childWrite} // fd 3 = child's read end, fd 4 = child's write end
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	if err := cmd.Start(); err != nil {
		parentRead.Close()
		parentWrite.Close()
		childRead.Close()
		childWrite.Close()
		return nil, ttumderr.Wrap(ttumderr.KindTransport, "simulator.StartChildProcess", err)
	}
	childRead.Close()
	childWrite.Close()

	return &ChildProcessHost{cmd: cmd, toChild: parentWrite, fromChild: parentRead}, nil
}

// call sends one request and blocks for its matching response. The
// parent side is allowed to block here even though the child's own main
// loop must not: the child is always either idle-clocking
// the simulator or actively draining this exact request, so a
// synchronous round trip never stalls it.
func (h *ChildProcessHost) call(typ messageType, payload []byte) ([]byte, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if err := writeMessage(h.toChild, typ, payload); err != nil {
		return nil, ttumderr.Wrap(ttumderr.KindTransport, "simulator.call", err)
	}
	respType, respPayload, err := readMessage(h.fromChild)
	if err != nil {
		return nil, ttumderr.Wrap(ttumderr.KindTransport, "simulator.call", err)
	}
	if respType != msgResponse {
		return nil, ttumderr.New(ttumderr.KindTransport, "simulator.call", "child returned unexpected message type for request")
	}
	return respPayload, nil
}

func (h *ChildProcessHost) StartDevice() error {
	_, err := h.call(msgStartDevice, nil)
	return err
}

func (h *ChildProcessHost) CloseDevice() error {
	_, err := h.call(msgCloseDevice, nil)
	return err
}

func (h *ChildProcessHost) WriteToDevice(coreX, coreY uint8, l1Dest uint64, data []byte) error {
	_, err := h.call(msgWriteToDevice, encodeWriteRequest(coreX, coreY, l1Dest, data))
	return err
}

func (h *ChildProcessHost) ReadFromDevice(coreX, coreY uint8, l1Src uint64, size uint32) ([]byte, error) {
	return h.call(msgReadFromDevice, encodeReadRequest(coreX, coreY, l1Src, size))
}

func (h *ChildProcessHost) SendTensixRiscReset(coreX, coreY uint8, selector RiscSelector) error {
	_, err := h.call(msgSendTensixRiscReset, encodeResetRequest(coreX, coreY, selector))
	return err
}

func (h *ChildProcessHost) AssertRiscReset(coreX, coreY uint8, selector RiscSelector) error {
	_, err := h.call(msgAssertRiscReset, encodeResetRequest(coreX, coreY, selector))
	return err
}

func (h *ChildProcessHost) DeassertRiscReset(coreX, coreY uint8, selector RiscSelector, staggeredStart bool) error {
	_, err := h.call(msgDeassertRiscReset, encodeDeassertRequest(coreX, coreY, selector, staggeredStart))
	return err
}

// ConnectEthLinks asks the child to bring up its unix-socket ethernet
// link emulation and reports whether every configured link connected.
func (h *ChildProcessHost) ConnectEthLinks() (bool, error) {
	resp, err := h.call(msgConnectEthLinks, nil)
	if err != nil {
		return false, err
	}
	return len(resp) > 0 && resp[0] != 0, nil
}

// Close tells the child to exit and waits for the process, closing both
// pipe ends regardless of how the exchange went.
func (h *ChildProcessHost) Close() error {
	_, callErr := h.call(msgExit, nil)
	h.toChild.Close()
	h.fromChild.Close()
	waitErr := h.cmd.Wait()
	if callErr != nil {
		return callErr
	}
	return waitErr
}

// DeviceImpl is the simulator implementation a child process loop
// dispatches messages to — the Go equivalent of the original's
// TTSimChipImpl, supplied by whatever concrete simulator binary this
// child process wraps.
type DeviceImpl interface {
	StartDevice() error
	CloseDevice() error
	WriteToDevice(coreX, coreY uint8, l1Dest uint64, data []byte) error
	ReadFromDevice(coreX, coreY uint8, l1Src uint64, size uint32) ([]byte, error)
	SendTensixRiscReset(coreX, coreY uint8, selector RiscSelector) error
	AssertRiscReset(coreX, coreY uint8, selector RiscSelector) error
	DeassertRiscReset(coreX, coreY uint8, selector RiscSelector, staggeredStart bool) error
	ConnectEthLinks() bool
	// Clock advances the simulator by the given number of idle ticks,
	// called once per loop iteration while the device is started, after
	// any message that arrived in that iteration has been handled.
	Clock(ticks int)
}

// ChildLoop runs the child side of the protocol: poll the read
// descriptor for a pending message without blocking, dispatch it if one
// arrived, and otherwise clock the simulator — matching the original's
// "poll-based send-after-connect... continuously advance the simulator
// clock when idle" requirement so the main loop is never blocked on I/O.
func ChildLoop(readFd, writeFd int, impl DeviceImpl) error {
	fromParent := os.NewFile(uintptr(readFd), "sim-read")
	toParent := os.NewFile(uintptr(writeFd), "sim-write")
	started := false

	for {
		ready, err := pollReadable(readFd, 0)
		if err != nil {
			return ttumderr.Wrap(ttumderr.KindTransport, "simulator.ChildLoop", err)
		}
		if ready {
			typ, payload, err := readMessage(fromParent)
			if err != nil {
				return ttumderr.Wrap(ttumderr.KindTransport, "simulator.ChildLoop", err)
			}
			exit, err := dispatch(toParent, impl, typ, payload)
			if err != nil {
				return err
			}
			if exit {
				started = false
				return nil
			}
			if typ == msgStartDevice {
				started = true
			}
			if typ == msgCloseDevice {
				started = false
			}
		}
		if started {
			impl.Clock(10)
		} else {
			time.Sleep(time.Millisecond)
		}
	}
}

// pollReadable checks, without blocking, whether fd has data available
// to read, mirroring child_process_tt_sim_chip.cpp's poll(&pfd, 1, 0)
// zero-timeout check.
func pollReadable(fd int, timeoutMs int) (bool, error) {
	fds := []unix.PollFd{{Fd: int32(fd), Events: unix.POLLIN}}
	n, err := unix.Poll(fds, timeoutMs)
	if err != nil {
		return false, err
	}
	return n > 0 && fds[0].Revents&unix.POLLIN != 0, nil
}

func dispatch(w *os.File, impl DeviceImpl, typ messageType, payload []byte) (exit bool, err error) {
	switch typ {
	case msgStartDevice:
		err = impl.StartDevice()
		return false, respond(w, err, nil)
	case msgCloseDevice:
		err = impl.CloseDevice()
		return false, respond(w, err, nil)
	case msgWriteToDevice:
		coreX, coreY, l1Dest, data, ok := decodeWriteRequest(payload)
		if !ok {
			return false, respond(w, ttumderr.New(ttumderr.KindInvalidArgument, "simulator.dispatch", "malformed write request"), nil)
		}
		err = impl.WriteToDevice(coreX, coreY, l1Dest, data)
		return false, respond(w, err, nil)
	case msgReadFromDevice:
		coreX, coreY, l1Src, size, ok := decodeReadRequest(payload)
		if !ok {
			return false, respond(w, ttumderr.New(ttumderr.KindInvalidArgument, "simulator.dispatch", "malformed read request"), nil)
		}
		data, rerr := impl.ReadFromDevice(coreX, coreY, l1Src, size)
		return false, respond(w, rerr, data)
	case msgSendTensixRiscReset:
		coreX, coreY, selector, ok := decodeResetRequest(payload)
		if !ok {
			return false, respond(w, ttumderr.New(ttumderr.KindInvalidArgument, "simulator.dispatch", "malformed reset request"), nil)
		}
		err = impl.SendTensixRiscReset(coreX, coreY, selector)
		return false, respond(w, err, nil)
	case msgAssertRiscReset:
		coreX, coreY, selector, ok := decodeResetRequest(payload)
		if !ok {
			return false, respond(w, ttumderr.New(ttumderr.KindInvalidArgument, "simulator.dispatch", "malformed reset request"), nil)
		}
		err = impl.AssertRiscReset(coreX, coreY, selector)
		return false, respond(w, err, nil)
	case msgDeassertRiscReset:
		coreX, coreY, selector, staggered, ok := decodeDeassertRequest(payload)
		if !ok {
			return false, respond(w, ttumderr.New(ttumderr.KindInvalidArgument, "simulator.dispatch", "malformed deassert request"), nil)
		}
		err = impl.DeassertRiscReset(coreX, coreY, selector, staggered)
		return false, respond(w, err, nil)
	case msgConnectEthLinks:
		ok := impl.ConnectEthLinks()
		flag := byte(0)
		if ok {
			flag = 1
		}
		return false, respond(w, nil, []byte{flag})
	case msgExit:
		return true, respond(w, nil, nil)
	default:
		return false, respond(w, ttumderr.New(ttumderr.KindInvalidArgument, "simulator.dispatch", "unknown message type"), nil)
	}
}

func respond(w *os.File, handlerErr error, data []byte) error {
	if handlerErr != nil {
		return handlerErr
	}
	return writeMessage(w, msgResponse, data)
}
