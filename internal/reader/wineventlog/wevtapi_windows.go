//go:build windows

package wineventlog

import (
	"unsafe"

	"golang.org/x/sys/windows"
)

type evtHandle uintptr

const (
	evtSubscribeToFutureEvents      = 1
	evtSubscribeStartAtOldestRecord = 2

	evtQueryFilePath         = 0x2
	evtQueryForwardDirection = 0x100

	evtRenderEventXML = 1

	evtFormatMessageEvent = 1
	evtFormatMessageLevel = 2
)

var (
	modwevtapi = windows.NewLazySystemDLL("wevtapi.dll")

	procEvtSubscribe             = modwevtapi.NewProc("EvtSubscribe")
	procEvtQuery                 = modwevtapi.NewProc("EvtQuery")
	procEvtNext                  = modwevtapi.NewProc("EvtNext")
	procEvtRender                = modwevtapi.NewProc("EvtRender")
	procEvtClose                 = modwevtapi.NewProc("EvtClose")
	procEvtOpenPublisherMetadata = modwevtapi.NewProc("EvtOpenPublisherMetadata")
	procEvtFormatMessage         = modwevtapi.NewProc("EvtFormatMessage")
)

func evtSubscribe(signal windows.Handle, channel, query *uint16, flags uint32) (evtHandle, error) {
	r, _, err := procEvtSubscribe.Call(
		0,
		uintptr(signal),
		uintptr(unsafe.Pointer(channel)),
		uintptr(unsafe.Pointer(query)),
		0, 0, 0,
		uintptr(flags),
	)
	if r == 0 {
		return 0, err
	}
	return evtHandle(r), nil
}

func evtQuery(path, query *uint16, flags uint32) (evtHandle, error) {
	r, _, err := procEvtQuery.Call(
		0,
		uintptr(unsafe.Pointer(path)),
		uintptr(unsafe.Pointer(query)),
		uintptr(flags),
	)
	if r == 0 {
		return 0, err
	}
	return evtHandle(r), nil
}

// evtNext fetches up to len(events) handles from a subscription or query
// result set, waiting at most timeout milliseconds.
func evtNext(set evtHandle, events []evtHandle, timeout uint32) (int, error) {
	var returned uint32
	r, _, err := procEvtNext.Call(
		uintptr(set),
		uintptr(len(events)),
		uintptr(unsafe.Pointer(&events[0])),
		uintptr(timeout),
		0,
		uintptr(unsafe.Pointer(&returned)),
	)
	if r == 0 {
		return 0, err
	}
	return int(returned), nil
}

// evtRenderXML renders an event handle as its UTF-16 XML document.
func evtRenderXML(event evtHandle, buf []uint16) (string, []uint16, error) {
	for {
		var used, count uint32
		var ptr uintptr
		if len(buf) > 0 {
			ptr = uintptr(unsafe.Pointer(&buf[0]))
		}
		r, _, err := procEvtRender.Call(
			0,
			uintptr(event),
			evtRenderEventXML,
			uintptr(len(buf)*2),
			ptr,
			uintptr(unsafe.Pointer(&used)),
			uintptr(unsafe.Pointer(&count)),
		)
		if r != 0 {
			return windows.UTF16ToString(buf[:used/2]), buf, nil
		}
		if err != windows.ERROR_INSUFFICIENT_BUFFER {
			return "", buf, err
		}
		buf = make([]uint16, used/2+1)
	}
}

func evtClose(h evtHandle) {
	if h != 0 {
		procEvtClose.Call(uintptr(h))
	}
}

func evtOpenPublisherMetadata(provider string) (evtHandle, error) {
	p, err := windows.UTF16PtrFromString(provider)
	if err != nil {
		return 0, err
	}
	r, _, err := procEvtOpenPublisherMetadata.Call(0, uintptr(unsafe.Pointer(p)), 0, 0, 0)
	if r == 0 {
		return 0, err
	}
	return evtHandle(r), nil
}

// evtFormat formats one piece of an event's text through publisher metadata.
func evtFormat(meta, event evtHandle, flags uint32) (string, error) {
	buf := make([]uint16, 256)
	for {
		var used uint32
		r, _, err := procEvtFormatMessage.Call(
			uintptr(meta),
			uintptr(event),
			0, 0, 0,
			uintptr(flags),
			uintptr(len(buf)),
			uintptr(unsafe.Pointer(&buf[0])),
			uintptr(unsafe.Pointer(&used)),
		)
		if r != 0 {
			return windows.UTF16ToString(buf[:used]), nil
		}
		if err != windows.ERROR_INSUFFICIENT_BUFFER {
			return "", err
		}
		buf = make([]uint16, used+1)
	}
}
