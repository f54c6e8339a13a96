package model

// --- Host IPC Messages ---

type MessageType string

const (
	MessageTypeHello              MessageType = "hello"
	MessageTypePing               MessageType = "ping"
	MessageTypePong               MessageType = "pong"
	MessageTypePrintData          MessageType = "print_data"
	MessageTypePrintResult        MessageType = "print_result"
	MessageTypeConnectPrinter     MessageType = "connect_printer"
	MessageTypeConnected          MessageType = "connected"
	MessageTypeListSerialPorts    MessageType = "list_serial_ports"
	MessageTypeSerialPorts        MessageType = "serial_ports"
	MessageTypeListSystemPrinters MessageType = "list_system_printers"
	MessageTypeSystemPrinters     MessageType = "system_printers"
	MessageTypeStoreGet           MessageType = "store_get"
	MessageTypeStoreSet           MessageType = "store_set"
	MessageTypeStoreDelete        MessageType = "store_delete"
	MessageTypeStoreValue         MessageType = "store_value"
	MessageTypeError              MessageType = "error"
)

type IPCMessage struct {
	Type                 MessageType `json:"type"`
	ID                   string      `json:"id,omitempty"`
	Data                 []byte      `json:"data,omitempty"` // raw ESC/POS bytes, base64 on the wire
	Port                 string      `json:"port,omitempty"`
	Key                  string      `json:"key,omitempty"`
	Value                string      `json:"value,omitempty"`
	Found                bool        `json:"found,omitempty"`
	OK                   bool        `json:"ok,omitempty"`
	Error                string      `json:"error,omitempty"`
	Ports                []PortInfo  `json:"ports,omitempty"`
	Printers             []string    `json:"printers,omitempty"`
	IndependentPrompting bool        `json:"independentPrompting,omitempty"`
}

// PortInfo describes a serial port visible on this machine.
type PortInfo struct {
	Name         string `json:"name"`
	Label        string `json:"label"`
	IsUSB        bool   `json:"isUsb,omitempty"`
	VID          string `json:"vid,omitempty"`
	PID          string `json:"pid,omitempty"`
	SerialNumber string `json:"serialNumber,omitempty"`
}
