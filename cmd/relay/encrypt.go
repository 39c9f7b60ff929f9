package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"relay-ai/internal/infra/config"
)

// runEncrypt prints the "enc:" form of a secret for use in config.yaml.
// The secret is the first positional argument, or stdin when there is none.
func runEncrypt(args []string, in io.Reader, out io.Writer) error {
	passphrase := os.Getenv("RELAYAI_CONFIG_KEY")
	if passphrase == "" {
		return errors.New("RELAYAI_CONFIG_KEY must be set")
	}

	var secret string
	for _, a := range args {
		if !strings.HasPrefix(a, "-") {
			secret = a
			break
		}
	}
	if secret == "" {
		data, err := io.ReadAll(io.LimitReader(in, 64*1024))
		if err != nil {
			return fmt.Errorf("read secret: %w", err)
		}
		secret = strings.TrimSpace(string(data))
	}
	if secret == "" {
		return errors.New("no secret given")
	}

	enc, err := config.EncryptValue(secret, passphrase)
	if err != nil {
		return err
	}
	fmt.Fprintln(out, "enc:"+enc)
	return nil
}
