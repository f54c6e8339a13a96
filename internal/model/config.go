package model

// --- Application Configuration (config.toml) ---

type Config struct {
	AppVersion   string   `toml:"app_version"`
	SettingsPath string   `toml:"settings_path"`
	HostURL      string   `toml:"host_url"`
	PreviewDir   string   `toml:"preview_dir"`
	ChromePath   string   `toml:"chrome_path"`
	Interactive  bool     `toml:"interactive_preview"`
	SystemPDF    bool     `toml:"system_pdf"`
	LogLevel     string   `toml:"log_level"`
	Shop         ShopInfo `toml:"shop"`
	Host         HostCfg  `toml:"host"`
}

// ShopInfo is the letterhead printed at the top of every ticket.
type ShopInfo struct {
	Name    string   `toml:"name"`
	Branch  string   `toml:"branch"`
	Address []string `toml:"address"`
	Phone   string   `toml:"phone"`
}

type HostCfg struct {
	Listen string `toml:"listen"`
}

// --- Printer Configuration (settings store) ---

type PrinterType string

const (
	PrinterTypeSerial PrinterType = "serial"
	PrinterTypeSystem PrinterType = "system"
)

// Settings store keys, shared with the host process.
const (
	KeyPrinterType   = "printerType"
	KeySerialPort    = "selectedSerialPort"
	KeySystemPrinter = "selectedSystemPrinter"
)

// PrinterConfiguration is read before every job. A nil configuration means the
// user has not picked a printer yet.
type PrinterConfiguration struct {
	Type          PrinterType `json:"printerType"`
	SerialPort    string      `json:"selectedSerialPort,omitempty"`
	SystemPrinter string      `json:"selectedSystemPrinter,omitempty"`
}

func (t PrinterType) Valid() bool {
	return t == PrinterTypeSerial || t == PrinterTypeSystem
}
