// vaultctl is the operator tool for the firmware vault: it seals authored
// firmware into encrypted-at-rest artifacts, verifies them and lists the
// supported device types.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/flashguard/flashguard/config"
	l "github.com/flashguard/flashguard/logger"
	"github.com/flashguard/flashguard/pkg/cryptoutil"
	"github.com/flashguard/flashguard/pkg/vault"

	log "github.com/sirupsen/logrus"
)

func main() {
	flag.Parse()
	config.Init()
	l.InitLogger()

	cfg := config.Get()
	rootLog := log.NewEntry(log.StandardLogger())

	v, err := vault.NewVault(cfg, rootLog)
	if err != nil {
		log.WithField("error", err.Error()).Fatal("cannot open vault")
	}

	switch flag.Arg(0) {
	case "seal":
		if flag.NArg() != 3 {
			usage()
		}
		seal(v, flag.Arg(1), flag.Arg(2))
	case "verify":
		if flag.NArg() != 2 {
			usage()
		}
		verify(v, flag.Arg(1))
	case "list":
		for _, name := range vault.DeviceTypeNames() {
			dt, _ := vault.GetDeviceType(name)
			fmt.Printf("%s\tcost=%d\ttool=%s\tartifacts=%v\n", dt.Name, dt.CreditCost, dt.Tool, dt.FirmwareFiles)
		}
	default:
		usage()
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: vaultctl seal <artifact-name> <plaintext-file> | verify <device-type> | list")
	os.Exit(2)
}

// seal encrypts an authored firmware file into the vault storage
// directory. The plaintext read buffer is zeroized before exit.
func seal(v *vault.Vault, name string, path string) {
	plaintext, err := os.ReadFile(path)
	if err != nil {
		log.WithField("error", err.Error()).Fatal("cannot read plaintext firmware")
	}
	defer cryptoutil.Zeroize(plaintext)

	if err := v.SealArtifact(name, plaintext); err != nil {
		log.WithField("error", err.Error()).Fatal("cannot seal artifact")
	}
	log.WithFields(log.Fields{
		"artifact": name,
		"bytes":    len(plaintext),
	}).Info("artifact sealed")
}

// verify opens every artifact of a device type and reports integrity
func verify(v *vault.Vault, deviceType string) {
	manifest, err := v.RequiredArtifacts(deviceType)
	if err != nil {
		log.WithField("error", err.Error()).Fatal("unknown device type")
	}
	failed := false
	for _, name := range manifest {
		plaintext, err := v.OpenPlaintext(name)
		if err != nil {
			failed = true
			fmt.Printf("%s\tFAIL\t%s\n", name, err.Error())
			continue
		}
		fmt.Printf("%s\tOK\t%d bytes\n", name, plaintext.Len())
		plaintext.Close()
	}
	if failed {
		os.Exit(1)
	}
}
