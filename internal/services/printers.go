package services

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/Riboost-Studio/cafe-ticket-printer/internal/model"
)

// --- Terminal prompts ---

// TerminalPrompter asks the operator to pick a printer on a text terminal.
type TerminalPrompter struct {
	reader *bufio.Reader
	out    io.Writer
}

func NewTerminalPrompter(in io.Reader, out io.Writer) *TerminalPrompter {
	return &TerminalPrompter{reader: bufio.NewReader(in), out: out}
}

// readLine returns the trimmed answer, or ErrUserCancelled on EOF or ctx end.
func (p *TerminalPrompter) readLine(ctx context.Context) (string, error) {
	type answer struct {
		line string
		err  error
	}
	ch := make(chan answer, 1)
	go func() {
		line, err := p.reader.ReadString('\n')
		ch <- answer{line, err}
	}()

	select {
	case <-ctx.Done():
		return "", fmt.Errorf("%w: %v", model.ErrUserCancelled, ctx.Err())
	case a := <-ch:
		line := strings.TrimSpace(a.line)
		if a.err != nil && line == "" {
			return "", model.ErrUserCancelled
		}
		return line, nil
	}
}

// choose prints a numbered list and returns the picked index. An empty answer
// or "q" cancels.
func (p *TerminalPrompter) choose(ctx context.Context, title string, labels []string) (int, error) {
	fmt.Fprintln(p.out, title)
	for i, l := range labels {
		fmt.Fprintf(p.out, "  %d) %s\n", i+1, l)
	}

	for {
		fmt.Fprintf(p.out, "Choice (1-%d, q to cancel): ", len(labels))
		ans, err := p.readLine(ctx)
		if err != nil {
			return 0, err
		}
		if ans == "" || strings.EqualFold(ans, "q") {
			return 0, model.ErrUserCancelled
		}
		n, err := strconv.Atoi(ans)
		if err == nil && n >= 1 && n <= len(labels) {
			return n - 1, nil
		}
		fmt.Fprintf(p.out, "Invalid choice %q.\n", ans)
	}
}

// SelectPort implements PortPrompter.
func (p *TerminalPrompter) SelectPort(ctx context.Context, ports []model.PortInfo) (string, error) {
	if len(ports) == 0 {
		fmt.Fprintln(p.out, "No serial port found. Plug the printer in and try again.")
		return "", model.ErrUserCancelled
	}
	labels := make([]string, len(ports))
	for i, port := range ports {
		labels[i] = port.Label
		if labels[i] == "" {
			labels[i] = port.Name
		}
	}
	i, err := p.choose(ctx, "Select the printer's serial port:", labels)
	if err != nil {
		return "", err
	}
	return ports[i].Name, nil
}

// ConfigurePrinter walks the operator through choosing the printer type and
// device. Either list may be empty.
func (p *TerminalPrompter) ConfigurePrinter(ctx context.Context, ports []model.PortInfo, printers []string) (model.PrinterConfiguration, error) {
	fmt.Fprintln(p.out, "--- Printer Setup ---")

	types := []string{"Serial / USB thermal printer", "System printer (OS print queue)"}
	i, err := p.choose(ctx, "Printer type:", types)
	if err != nil {
		return model.PrinterConfiguration{}, err
	}

	if i == 0 {
		port, err := p.SelectPort(ctx, ports)
		if err != nil {
			return model.PrinterConfiguration{}, err
		}
		return model.PrinterConfiguration{Type: model.PrinterTypeSerial, SerialPort: port}, nil
	}

	if len(printers) == 0 {
		fmt.Fprintln(p.out, "No system printer found. Add one in the OS printer settings first.")
		return model.PrinterConfiguration{}, model.ErrUserCancelled
	}
	j, err := p.choose(ctx, "Select the system printer:", printers)
	if err != nil {
		return model.PrinterConfiguration{}, err
	}
	return model.PrinterConfiguration{Type: model.PrinterTypeSystem, SystemPrinter: printers[j]}, nil
}
