package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	redisAdapter "github.com/aretw0/sagaflow/pkg/adapters/redis"
	"github.com/aretw0/sagaflow/pkg/domain"
	"github.com/spf13/cobra"
)

var publishCmd = &cobra.Command{
	Use:   "publish <event-type> <correlation-id>",
	Short: "Append a domain event to the inbound Redis stream",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		if !cfg.RedisEnabled() || cfg.Redis.InboundStream == "" {
			return errors.New("publish needs SAGAFLOW_REDIS_ADDR and SAGAFLOW_INBOUND_STREAM")
		}

		payload, _ := cmd.Flags().GetString("payload")
		if payload != "" && !json.Valid([]byte(payload)) {
			return fmt.Errorf("payload is not valid JSON")
		}
		domainName, _ := cmd.Flags().GetString("domain")

		client := redisAdapter.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		defer client.Close()

		event := domain.DomainEvent{
			Type:          args[0],
			Domain:        domainName,
			CorrelationID: args[1],
			Timestamp:     time.Now().UTC(),
		}
		if payload != "" {
			event.Payload = json.RawMessage(payload)
		}
		id, err := redisAdapter.PublishEvent(cmd.Context(), client, cfg.Redis.InboundStream, event)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "published %s as %s\n", event.Type, id)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(publishCmd)
	publishCmd.Flags().String("domain", "", "Publishing domain")
	publishCmd.Flags().String("payload", "", "Event payload as JSON")
}
