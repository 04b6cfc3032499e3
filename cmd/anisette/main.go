package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/libanisette/anisette-go/internal/adi"
	"github.com/libanisette/anisette-go/internal/config"
	"github.com/libanisette/anisette-go/internal/device"
	"github.com/libanisette/anisette-go/internal/emulator"
	glog "github.com/libanisette/anisette-go/internal/log"
	"github.com/libanisette/anisette-go/internal/provisioning"
	"github.com/libanisette/anisette-go/internal/ui/colorize"
)

var (
	configPath string
	verbose    bool
	dsidFlag   uint64
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "anisette",
		Short: "Produce Apple anisette authentication headers",
		Long: `anisette drives Apple's libstoreservicescore.so/libCoreADI.so inside an
in-process AArch64 emulator to provision a machine identity and request
one-time-password/machine-ID pairs for GSA authentication.

Examples:
  anisette run -c anisette.yaml            # provision (if needed) and print headers
  anisette info ./lib/libCoreADI.so        # show a binary's dynamic symbols
  anisette status -c anisette.yaml         # run with a live TUI progress view`,
		DisableFlagsInUseLine: true,
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to anisette.yaml")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose debug logging")
	rootCmd.PersistentFlags().Uint64Var(&dsidFlag, "dsid", 0, "Apple DSID (overrides config)")

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Provision (if needed) and print anisette headers as JSON",
		RunE:  runSession,
	}
	infoCmd := &cobra.Command{
		Use:   "info <binary.so>",
		Short: "Show a binary's dynamic symbols",
		Args:  cobra.ExactArgs(1),
		RunE:  showInfo,
	}
	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Run a session with a live TUI progress view",
		RunE:  runStatus,
	}

	rootCmd.AddCommand(runCmd, infoCmd, statusCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, colorize.Error(err.Error()))
		os.Exit(1)
	}
}

// outputWriter buffers status lines on a background goroutine so printing
// never blocks the emulation loop it's reporting on.
type outputWriter struct {
	ch     chan string
	done   chan struct{}
	writer *bufio.Writer
}

func newOutputWriter() *outputWriter {
	w := &outputWriter{
		ch:     make(chan string, 256),
		done:   make(chan struct{}),
		writer: bufio.NewWriterSize(os.Stdout, 4096),
	}
	go w.run()
	return w
}

func (w *outputWriter) run() {
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case line, ok := <-w.ch:
			if !ok {
				w.writer.Flush()
				close(w.done)
				return
			}
			w.writer.WriteString(line)
			w.writer.WriteByte('\n')
		case <-ticker.C:
			w.writer.Flush()
		}
	}
}

func (w *outputWriter) Write(line string) {
	select {
	case w.ch <- line:
	default:
	}
}

func (w *outputWriter) Close() {
	close(w.ch)
	<-w.done
}

func loadConfig() (config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return cfg, err
	}
	if dsidFlag != 0 {
		cfg.DSID = dsidFlag
	}
	if verbose {
		cfg.Debug = true
	}
	return cfg, nil
}

type headers struct {
	OTP       string `json:"otp"`
	MachineID string `json:"machineId"`
}

// buildSession wires a Config into a running *adi.Adi plus the persisted
// device identity it authenticates as, provisioning the machine with Apple
// if it hasn't been already.
func buildSession(ctx context.Context, cfg config.Config, logger *glog.Logger, out func(string)) (*adi.Adi, *device.Device, error) {
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}

	storeServices, err := os.ReadFile(cfg.StoreServicesCorePath)
	if err != nil {
		return nil, nil, fmt.Errorf("read store services core: %w", err)
	}
	coreADI, err := os.ReadFile(cfg.CoreADIPath)
	if err != nil {
		return nil, nil, fmt.Errorf("read core adi: %w", err)
	}

	dev, err := device.Load(cfg.DeviceStatePath)
	if err != nil {
		return nil, nil, fmt.Errorf("load device state: %w", err)
	}
	if !dev.Initialized {
		out("no device identity found, generating one")
		if err := dev.InitializeDefaults(); err != nil {
			return nil, nil, fmt.Errorf("initialize device: %w", err)
		}
		if err := dev.Persist(); err != nil {
			return nil, nil, fmt.Errorf("persist device: %w", err)
		}
	}

	a, err := adi.New(logger, adi.Config{
		StoreServicesCore: storeServices,
		CoreADI:           coreADI,
		LibraryPath:       cfg.LibraryRoot,
		ProvisioningPath:  cfg.ProvisioningPath,
		Identifier:        dev.Data.AdiIdentifier,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("start adi: %w", err)
	}

	provisioned, err := a.IsMachineProvisioned(cfg.DSID)
	if err != nil {
		a.Close()
		return nil, nil, fmt.Errorf("check provisioning: %w", err)
	}
	if !provisioned {
		out("machine not provisioned, starting GSA handshake")
		session, err := provisioning.NewHTTPSession(a, &dev.Data, cfg.AppleRootPEM, logger)
		if err != nil {
			a.Close()
			return nil, nil, fmt.Errorf("build provisioning session: %w", err)
		}
		if err := session.Provision(ctx, cfg.DSID); err != nil {
			a.Close()
			return nil, nil, fmt.Errorf("provision: %w", err)
		}
		out("provisioning complete")
	}

	return a, dev, nil
}

func runSession(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	glog.Init(cfg.Debug)
	logger := glog.L

	out := newOutputWriter()
	defer out.Close()

	a, _, err := buildSession(cmd.Context(), cfg, logger, out.Write)
	if err != nil {
		return err
	}
	defer a.Close()

	otp, err := a.RequestOTP(cfg.DSID)
	if err != nil {
		return fmt.Errorf("request otp: %w", err)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(headers{
		OTP:       fmt.Sprintf("%x", otp.OTP),
		MachineID: fmt.Sprintf("%x", otp.MachineID),
	})
}

func showInfo(cmd *cobra.Command, args []string) error {
	binaryPath := args[0]
	data, err := os.ReadFile(binaryPath)
	if err != nil {
		return fmt.Errorf("read binary: %w", err)
	}

	emu, err := newInfoEmulator()
	if err != nil {
		return err
	}
	defer emu.Close()

	const name = "target.so"
	emu.RegisterLibraryBlob(name, data)
	ordinal, err := emu.LoadLibrary(name)
	if err != nil {
		return fmt.Errorf("load binary: %w", err)
	}
	symbols, err := emu.LibrarySymbols(ordinal)
	if err != nil {
		return err
	}

	fmt.Printf("%s %s\n", colorize.Header("▶"), binaryPath)
	defined, undefined := 0, 0
	for _, sym := range symbols {
		if sym.Defined {
			defined++
		} else {
			undefined++
		}
	}
	fmt.Printf("  %s %s  %s %s\n",
		colorize.Detail("defined:"), colorize.FuncName(fmt.Sprintf("%d", defined)),
		colorize.Detail("imports:"), colorize.FuncName(fmt.Sprintf("%d", undefined)))

	fmt.Println("\nSymbols:")
	for _, sym := range symbols {
		if sym.Name == "" {
			continue
		}
		kind := "import"
		if sym.Defined {
			kind = "defined"
		}
		fmt.Printf("  0x%08x  %-7s  %s\n", sym.Address, kind, sym.Name)
	}
	return nil
}

func newInfoEmulator() (*emulator.Emulator, error) {
	return emulator.New(glog.NewNop())
}
