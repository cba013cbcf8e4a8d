// Command pn532vaultctl drives a PN532 over UART from the command line:
// scanning for a card, reading or writing its NDEF message, reading or
// writing the proprietary Vault profile, or running the card emulator.
package main

import (
	"encoding/hex"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/vaultnfc/pn532vault/ndefcodec"
	"github.com/vaultnfc/pn532vault/pn532"
)

func main() {
	devicePath := flag.String("device", "/dev/ttyUSB0", "path to the PN532 UART device")
	verbose := flag.Bool("v", false, "enable debug-level wire trace logging")
	flag.Parse()

	if flag.NArg() < 1 {
		log.Fatal("usage: pn532vaultctl [-device path] [-v] <scan|read-ndef|write-ndef|read-vault|write-vault|vault-length|emulate-type4|emulate-vault> [args...]")
	}

	logger := newLogger(*verbose)
	defer logger.Sync()

	cfg := pn532.DefaultConfig()
	dev := pn532.NewDevice(*devicePath, cfg, logger)

	cmd, args := flag.Arg(0), flag.Args()[1:]
	switch cmd {
	case "scan":
		runScan(dev)
	case "read-ndef":
		runReadNDEF(dev)
	case "write-ndef":
		runWriteNDEF(dev, args)
	case "read-vault":
		runReadVault(dev, args)
	case "write-vault":
		runWriteVault(dev, args)
	case "vault-length":
		runVaultLength(dev)
	case "emulate-type4":
		runEmulateType4(dev, args)
	case "emulate-vault":
		runEmulateVault(dev)
	default:
		log.Fatalf("unknown command %q", cmd)
	}
}

func newLogger(verbose bool) *zap.Logger {
	level := zap.InfoLevel
	if verbose {
		level = zap.DebugLevel
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(level)
	logger, err := cfg.Build()
	if err != nil {
		log.Fatalf("building logger: %v", err)
	}
	return logger
}

func printLogs(logs []pn532.LogEntry) {
	for _, e := range logs {
		fmt.Printf("%s %s %s\n", e.Timestamp.Format("15:04:05.000"), e.Direction, e.Hex)
	}
}

func runScan(dev *pn532.Device) {
	res := dev.Scan()
	printLogs(res.Logs)
	if res.Err != nil {
		log.Fatalf("scan: %v", res.Err)
	}
	if res.Card == nil {
		fmt.Println("no card present")
		return
	}
	fmt.Printf("UID=%s ATQA=%02X%02X SAK=%02X\n", res.Card.UIDHex(), res.Card.ATQA[0], res.Card.ATQA[1], res.Card.SAK)
}

func runReadNDEF(dev *pn532.Device) {
	res := dev.ReadNDEF()
	printLogs(res.Logs)
	if res.Err != nil {
		log.Fatalf("read-ndef: %v", res.Err)
	}
	records, err := ndefcodec.Decode(res.Raw)
	if err != nil {
		log.Fatalf("decoding NDEF message: %v", err)
	}
	for i, r := range records {
		fmt.Printf("record[%d]: type=%s id=%s payload=%s\n", i, r.Type, r.ID, hex.EncodeToString(r.Payload))
	}
}

func runWriteNDEF(dev *pn532.Device, args []string) {
	fs := flag.NewFlagSet("write-ndef", flag.ExitOnError)
	text := fs.String("text", "", "plain text to write as a single NDEF text record")
	lang := fs.String("lang", "en", "RFC 3066 language code for -text")
	fs.Parse(args)

	if *text == "" {
		log.Fatal("write-ndef requires -text")
	}
	message, err := ndefcodec.EncodeText(*text, *lang)
	if err != nil {
		log.Fatalf("encoding NDEF message: %v", err)
	}

	res := dev.WriteNDEF(message)
	printLogs(res.Logs)
	if res.Err != nil {
		log.Fatalf("write-ndef: %v", res.Err)
	}
	fmt.Println("ok")
}

func runReadVault(dev *pn532.Device, args []string) {
	fs := flag.NewFlagSet("read-vault", flag.ExitOnError)
	offset := fs.Uint("offset", 0, "byte offset (0-255)")
	length := fs.Uint("length", 32, "number of bytes to read")
	fs.Parse(args)

	res := dev.ReadVault(byte(*offset), byte(*length))
	printLogs(res.Logs)
	if res.Err != nil {
		log.Fatalf("read-vault: %v", res.Err)
	}
	fmt.Println(hex.EncodeToString(res.Data))
}

func runWriteVault(dev *pn532.Device, args []string) {
	fs := flag.NewFlagSet("write-vault", flag.ExitOnError)
	offset := fs.Uint("offset", 0, "byte offset (0-255)")
	data := fs.String("data", "", "hex-encoded bytes to write")
	fs.Parse(args)

	raw, err := hex.DecodeString(*data)
	if err != nil {
		log.Fatalf("invalid -data: %v", err)
	}

	res := dev.WriteVault(byte(*offset), raw)
	printLogs(res.Logs)
	if res.Err != nil {
		log.Fatalf("write-vault: %v", res.Err)
	}
	fmt.Printf("wrote %d bytes\n", res.BytesWritten)
}

func runVaultLength(dev *pn532.Device) {
	res := dev.ReadVaultLength()
	printLogs(res.Logs)
	if res.Err != nil {
		log.Fatalf("vault-length: %v", res.Err)
	}
	fmt.Println(res.Length)
}

func runEmulateType4(dev *pn532.Device, args []string) {
	fs := flag.NewFlagSet("emulate-type4", flag.ExitOnError)
	text := fs.String("text", "pn532vault", "text record to serve as the tag's NDEF content")
	maxSize := fs.Uint("max-size", 246, "advertised MaxNDEFSize in the Capability Container")
	fs.Parse(args)

	message, err := ndefcodec.EncodeText(*text, "en")
	if err != nil {
		log.Fatalf("encoding NDEF message: %v", err)
	}
	dispatcher := pn532.NewType4Dispatcher(message, uint16(*maxSize))
	runEmulation(dev, dispatcher)
}

func runEmulateVault(dev *pn532.Device) {
	dispatcher := pn532.NewVaultDispatcher(nil, pn532.DefaultConfig().VaultBufferSize)
	runEmulation(dev, dispatcher)
}

func runEmulation(dev *pn532.Device, dispatcher pn532.Dispatcher) {
	handle, err := dev.StartEmulation(dispatcher)
	if err != nil {
		log.Fatalf("starting emulation: %v", err)
	}
	fmt.Printf("emulating (id=%s), press Ctrl-C to stop\n", handle.ID)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-sigCh:
		handle.Stop()
	case <-handle.Done():
	}
	<-handle.Done()
	fmt.Println("stopped")
}
