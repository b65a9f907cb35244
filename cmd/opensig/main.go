// opensig is the command-line client for the opensig notarization
// protocol: it hashes documents, discovers their published signatures and
// registers new ones on a blockchain signature registry.
package main

import (
	"bufio"
	"context"
	"crypto/ecdsa"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"opensig/internal/codec"
	"opensig/internal/config"
	"opensig/internal/crypt"
	"opensig/internal/discover"
	"opensig/internal/document"
	"opensig/internal/hexutil"
	"opensig/internal/logging"
	"opensig/internal/networks"
	"opensig/internal/receipts"
	"opensig/internal/registry"
	"opensig/internal/wallet"
	"opensig/internal/watcher"
)

var (
	configPath        = flag.String("config", "", "path to config file")
	networkName       = flag.String("network", "", "network to use (overrides config)")
	rpcURL            = flag.String("rpc", "", "JSON-RPC endpoint (overrides network default)")
	encryptAnnotation = flag.Bool("encrypt", false, "encrypt the annotation under the document key")
)

func main() {
	flag.Parse()

	if flag.NArg() < 1 {
		usage()
		os.Exit(1)
	}

	cmd := flag.Arg(0)

	switch cmd {
	case "hash":
		requireArgs(2, "opensig hash <file>")
		cmdHash(flag.Arg(1))
	case "verify":
		requireArgs(2, "opensig verify <file>")
		cmdVerify(flag.Arg(1))
	case "sign":
		requireArgs(2, "opensig sign [options] <file> [annotation]")
		annotation := ""
		if flag.NArg() >= 3 {
			annotation = flag.Arg(2)
		}
		cmdSign(flag.Arg(1), annotation)
	case "watch":
		cmdWatch(flag.Args()[1:])
	case "networks":
		cmdNetworks()
	case "receipts":
		cmdReceipts()
	case "keygen":
		cmdKeygen()
	case "address":
		cmdAddress()
	case "help":
		usage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", cmd)
		usage()
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `opensig - Blockchain document notarization

Usage: opensig [options] <command> [args]

Commands:
  hash <file>               Print a document's hash
  verify <file>             List the published signatures of a document
  sign <file> [annotation]  Publish the document's next signature
  watch [paths...]          Sign watched documents as they change
  networks                  List known networks
  receipts                  Print locally recorded publish receipts
  keygen                    Generate a signing key
  address                   Print the signing key's address
  help                      Show this help message

Options:
  -config <path>    Path to config file (default: ~/.opensig/config.toml)
  -network <name>   Network to use (overrides config)
  -rpc <url>        JSON-RPC endpoint (overrides network default)

Sign options (set before the command):
  -encrypt          Encrypt the annotation under the document key`)
}

func requireArgs(n int, use string) {
	if flag.NArg() < n {
		fmt.Fprintln(os.Stderr, "Usage: "+use)
		os.Exit(1)
	}
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	os.Exit(1)
}

func loadConfig() *config.Config {
	cfg, err := config.Load(*configPath)
	if err != nil {
		fatalf("loading config: %v", err)
	}

	level, err := logging.ParseLevel(cfg.Logging.Level)
	if err != nil {
		fatalf("%v", err)
	}
	format, err := logging.ParseFormat(cfg.Logging.Format)
	if err != nil {
		fatalf("%v", err)
	}
	log, err := logging.New(&logging.Config{
		Level:      level,
		Format:     format,
		Output:     cfg.Logging.Output,
		FilePath:   cfg.Logging.FilePath,
		MaxSize:    int64(cfg.Logging.MaxSizeMB),
		MaxBackups: cfg.Logging.MaxBackups,
	})
	if err != nil {
		fatalf("initializing logging: %v", err)
	}
	logging.SetDefault(log)

	return cfg
}

// selectNetwork resolves the active network from flags and config.
func selectNetwork(cfg *config.Config) networks.Network {
	reg, err := networks.Load(cfg.NetworksFile)
	if err != nil {
		fatalf("%v", err)
	}

	name := cfg.Network
	if *networkName != "" {
		name = *networkName
	}
	net, err := reg.Get(name)
	if err != nil {
		fatalf("%v (known: %s)", err, strings.Join(reg.Names(), ", "))
	}

	if *rpcURL != "" {
		net.RPCURL = *rpcURL
	} else if cfg.RPCURL != "" {
		net.RPCURL = cfg.RPCURL
	}
	return net
}

// openRegistry dials the selected network. withKey loads the wallet so the
// registry can publish; without it the registry is query-only.
func openRegistry(cfg *config.Config, net networks.Network, withKey bool) *registry.EthereumRegistry {
	var key *ecdsa.PrivateKey
	if withKey {
		key = loadKey(cfg)
	}

	reg, err := registry.NewEthereumRegistry(registry.EthereumConfig{
		RPCURL:   net.RPCURL,
		ChainID:  net.ChainID,
		Contract: net.Contract,
		Key:      key,
	})
	if err != nil {
		fatalf("%v", err)
	}
	return reg
}

func loadKey(cfg *config.Config) *ecdsa.PrivateKey {
	key, err := wallet.Load(cfg.Wallet.KeyPath)
	if err == nil {
		return key
	}
	if !errors.Is(err, wallet.ErrPassphraseMissing) {
		fatalf("loading key %s: %v", cfg.Wallet.KeyPath, err)
	}

	key, err = wallet.LoadWithPassphrase(cfg.Wallet.KeyPath, readPassphrase("Passphrase: "))
	if err != nil {
		fatalf("loading key %s: %v", cfg.Wallet.KeyPath, err)
	}
	return key
}

// readPassphrase takes OPENSIG_PASSPHRASE if set, otherwise prompts on
// stderr and reads a line from stdin.
func readPassphrase(prompt string) []byte {
	if v := os.Getenv("OPENSIG_PASSPHRASE"); v != "" {
		return []byte(v)
	}
	fmt.Fprint(os.Stderr, prompt)
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil {
		fatalf("reading passphrase: %v", err)
	}
	return []byte(strings.TrimRight(line, "\r\n"))
}

func interruptContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func cmdHash(path string) {
	hash, err := crypt.HashFile(path)
	if err != nil {
		fatalf("%v", err)
	}
	fmt.Println(hexutil.Encode0x(hash[:]))
}

func cmdVerify(path string) {
	cfg := loadConfig()
	net := selectNetwork(cfg)
	reg := openRegistry(cfg, net, false)
	defer reg.Close()

	ctx, cancel := interruptContext()
	defer cancel()

	doc := document.NewFile(net.ChainID, path, reg)
	events, err := doc.Verify(ctx)
	if err != nil {
		fatalf("%v", err)
	}

	hash, _ := doc.Hash()
	fmt.Printf("Document: %s\n", path)
	fmt.Printf("Hash:     %s\n", hexutil.Encode0x(hash[:]))
	fmt.Printf("Network:  %s (chain %d)\n", net.Name, net.ChainID)
	fmt.Println()

	if len(events) == 0 {
		fmt.Println("No signatures found.")
		return
	}

	fmt.Printf("%d signature(s):\n", len(events))
	for _, ev := range events {
		printEvent(ev, net)
	}
}

func printEvent(ev discover.Event, net networks.Network) {
	if ev.Unparseable {
		fmt.Println("  - (unparseable registry record)")
		return
	}

	when := time.Unix(int64(ev.Time), 0).UTC().Format(time.RFC3339)
	fmt.Printf("  #%d  %s  by %s\n", ev.ChainIndex, when, ev.Signatory)
	switch ev.Data.Kind {
	case codec.KindString:
		fmt.Printf("      annotation: %q\n", ev.Data.Content)
	case codec.KindBinary:
		fmt.Printf("      annotation: %s (binary)\n", ev.Data.Content)
	case codec.KindInvalid:
		fmt.Printf("      annotation: unreadable (%s)\n", ev.Data.Content)
	}
}

func cmdSign(path, annotation string) {
	cfg := loadConfig()
	net := selectNetwork(cfg)
	reg := openRegistry(cfg, net, true)
	defer reg.Close()

	ctx, cancel := interruptContext()
	defer cancel()

	res, hash, err := signFile(ctx, net, reg, path, annotation, *encryptAnnotation)
	if err != nil {
		fatalf("%v", err)
	}

	fmt.Printf("Signature #%d published\n", res.ChainIndex)
	fmt.Printf("  Signature: %s\n", res.SignatureHash)
	fmt.Printf("  Signer:    %s\n", res.SignerAddress)
	fmt.Printf("  Tx:        %s\n", res.TxHash)
	if url := net.TxURL(res.TxHash); url != "" {
		fmt.Printf("  Explorer:  %s\n", url)
	}

	fmt.Print("Waiting for confirmation... ")
	if err := res.Confirm(ctx); err != nil {
		fmt.Println()
		fatalf("confirmation failed: %v", err)
	}
	fmt.Println("confirmed.")

	recordReceipt(cfg, net, hash, annotation, res)
}

// signFile verifies then signs one document, returning the publish result
// and the document hash.
func signFile(ctx context.Context, net networks.Network, reg registry.Registry, path, annotation string, encrypt bool) (*document.SignResult, [32]byte, error) {
	doc := document.NewFile(net.ChainID, path, reg)
	if _, err := doc.Verify(ctx); err != nil {
		return nil, [32]byte{}, err
	}

	note := codec.None()
	if annotation != "" {
		note = codec.Annotation{Kind: codec.KindString, Content: annotation, Encrypted: encrypt}
	}

	res, err := doc.Sign(ctx, note)
	if err != nil {
		return nil, [32]byte{}, err
	}
	hash, _ := doc.Hash()
	return res, hash, nil
}

func recordReceipt(cfg *config.Config, net networks.Network, hash [32]byte, annotation string, res *document.SignResult) {
	if !cfg.Receipts.Enabled {
		return
	}

	store, err := receipts.Open(cfg.Receipts.Path)
	if err != nil {
		logging.Warn("receipt store unavailable", "error", err)
		return
	}
	defer store.Close()

	if _, err := store.Insert(&receipts.Receipt{
		DocumentHash: hexutil.Encode0x(hash[:]),
		ChainID:      net.ChainID,
		ChainIndex:   res.ChainIndex,
		Signature:    res.SignatureHash,
		TxHash:       res.TxHash,
		Signer:       res.SignerAddress,
		Annotation:   annotation,
	}); err != nil {
		logging.Warn("recording receipt", "error", err)
	}
}

func cmdWatch(paths []string) {
	cfg := loadConfig()
	net := selectNetwork(cfg)

	if len(paths) == 0 {
		paths = cfg.Watch.Paths
	}
	if len(paths) == 0 {
		fatalf("no watch paths given and none configured")
	}

	reg := openRegistry(cfg, net, true)
	defer reg.Close()

	debounce := time.Duration(cfg.Watch.DebounceMs) * time.Millisecond
	w, err := watcher.New(paths, debounce)
	if err != nil {
		fatalf("%v", err)
	}
	if err := w.Start(); err != nil {
		fatalf("%v", err)
	}
	defer w.Stop()

	ctx, cancel := interruptContext()
	defer cancel()

	fmt.Printf("Watching %s on %s; Ctrl-C to stop.\n", strings.Join(paths, ", "), net.Name)

	for {
		select {
		case <-ctx.Done():
			return

		case err := <-w.Errors():
			logging.Warn("watch error", "error", err)

		case ev := <-w.Events():
			res, hash, err := signFile(ctx, net, reg, ev.Path,
				cfg.Watch.Annotation, cfg.Watch.EncryptAnnotation)
			if err != nil {
				logging.Error("signing watched document", "path", ev.Path, "error", err)
				continue
			}
			fmt.Printf("%s: signature #%d published (tx %s)\n", ev.Path, res.ChainIndex, res.TxHash)
			recordReceipt(cfg, net, hash, cfg.Watch.Annotation, res)
		}
	}
}

func cmdNetworks() {
	cfg := loadConfig()
	reg, err := networks.Load(cfg.NetworksFile)
	if err != nil {
		fatalf("%v", err)
	}

	fmt.Printf("%-12s %-10s %-44s %s\n", "Name", "Chain ID", "Contract", "RPC")
	for _, n := range reg.All() {
		marker := " "
		if strings.EqualFold(n.Name, cfg.Network) {
			marker = "*"
		}
		fmt.Printf("%s%-11s %-10d %-44s %s\n", marker, n.Name, n.ChainID, n.Contract, n.RPCURL)
	}
}

func cmdReceipts() {
	cfg := loadConfig()

	store, err := receipts.Open(cfg.Receipts.Path)
	if err != nil {
		fatalf("%v", err)
	}
	defer store.Close()

	list, err := store.Recent(50)
	if err != nil {
		fatalf("%v", err)
	}
	if len(list) == 0 {
		fmt.Println("No receipts recorded.")
		return
	}

	for _, r := range list {
		fmt.Printf("%s  chain %d  #%d  %s\n", r.CreatedAt.Format(time.RFC3339), r.ChainID, r.ChainIndex, r.DocumentHash)
		fmt.Printf("  tx %s\n", r.TxHash)
		if r.Annotation != "" {
			fmt.Printf("  annotation: %q\n", r.Annotation)
		}
	}
}

func cmdKeygen() {
	cfg := loadConfig()

	if _, err := os.Stat(cfg.Wallet.KeyPath); err == nil {
		fatalf("key file already exists: %s", cfg.Wallet.KeyPath)
	}

	key, err := wallet.Generate()
	if err != nil {
		fatalf("%v", err)
	}

	var passphrase []byte
	if cfg.Wallet.Encrypted {
		passphrase = readPassphrase("New passphrase: ")
		if len(passphrase) == 0 {
			fatalf("empty passphrase")
		}
	}

	if err := wallet.Save(cfg.Wallet.KeyPath, key, passphrase); err != nil {
		fatalf("%v", err)
	}

	fmt.Printf("Key written to %s\n", cfg.Wallet.KeyPath)
	fmt.Printf("Address: %s\n", wallet.Address(key))
}

func cmdAddress() {
	cfg := loadConfig()
	key := loadKey(cfg)
	fmt.Println(wallet.Address(key))
}
