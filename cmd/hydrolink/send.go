package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/benthic/hydrolink/channel"
	"github.com/benthic/hydrolink/config"
	"github.com/benthic/hydrolink/session"
)

func newSendCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "send <payload-file>",
		Short: "Send the contents of a file to the peer and wait for delivery",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			payload, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read payload: %w", err)
			}

			cfg, err := loadConfig(cmd.Context(), configPath)
			if err != nil {
				return err
			}

			port, err := channel.OpenSerial(device, baud)
			if err != nil {
				return err
			}
			defer port.Close()

			sess := session.New(port, cfg, nil)
			result, err := sess.SendMessage(context.Background(), payload)
			if err != nil {
				return fmt.Errorf("send: %w", err)
			}

			fmt.Printf("delivered %d bytes in %s (retries=%d)\n", len(payload), result.Duration, result.Retries)
			return nil
		},
	}
	cmd.Flags().StringVar(&configPath, "config", "", "path to a JSON config file")
	return cmd
}

func newRecvCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "recv",
		Short: "Wait for one message from the peer and print it to stdout",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd.Context(), configPath)
			if err != nil {
				return err
			}

			port, err := channel.OpenSerial(device, baud)
			if err != nil {
				return err
			}
			defer port.Close()

			sess := session.New(port, cfg, nil)
			payload, err := sess.RecvMessage(context.Background())
			if err != nil {
				return fmt.Errorf("recv: %w", err)
			}

			_, err = os.Stdout.Write(payload)
			return err
		},
	}
	cmd.Flags().StringVar(&configPath, "config", "", "path to a JSON config file")
	return cmd
}

func loadConfig(ctx context.Context, path string) (*config.Config, error) {
	var jsonData []byte
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		jsonData = data
	}
	return config.Load(ctx, jsonData)
}
