package main

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/keeply/backup-agent/internal/agentstate"
)

// newDeviceCmd exposes the agent.device_identity / agent.pairing_state
// / agent.link_state rows (spec §3 "AgentState", §4.9) this agent
// tracks about itself. The identity is created lazily on first read,
// mirroring the teacher's device-code auth flow generating state on
// first login rather than requiring a separate provisioning step.
func newDeviceCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "device",
		Short: "Show this agent's device identity and pairing status",
		RunE:  runDeviceCmd,
	}

	return cmd
}

func runDeviceCmd(cmd *cobra.Command, _ []string) error {
	cc := mustCLIContext(cmd.Context())

	identity, err := cc.State.DeviceIdentity(cmd.Context())
	if err != nil {
		return fmt.Errorf("reading device identity: %w", err)
	}

	if identity == nil {
		identity = &agentstate.DeviceIdentity{
			DeviceID: uuid.NewString(), CreatedAt: time.Now().UnixNano(), AgentBuild: version,
		}

		if err := cc.State.SetDeviceIdentity(cmd.Context(), *identity); err != nil {
			return fmt.Errorf("creating device identity: %w", err)
		}
	}

	pairing, err := cc.State.PairingState(cmd.Context())
	if err != nil {
		return fmt.Errorf("reading pairing state: %w", err)
	}

	link, err := cc.State.LinkState(cmd.Context())
	if err != nil {
		return fmt.Errorf("reading link state: %w", err)
	}

	if flagJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")

		return enc.Encode(struct {
			Identity *agentstate.DeviceIdentity `json:"deviceIdentity"`
			Pairing  *agentstate.PairingState   `json:"pairingState"`
			Link     *agentstate.LinkState      `json:"linkState"`
		}{identity, pairing, link})
	}

	fmt.Fprintf(cmd.OutOrStdout(), "device id: %s\n", identity.DeviceID)

	if pairing != nil && pairing.Paired {
		fmt.Fprintf(cmd.OutOrStdout(), "paired: yes (%s)\n", pairing.ServerURL)
	} else {
		fmt.Fprintln(cmd.OutOrStdout(), "paired: no")
	}

	if link != nil && link.Linked {
		fmt.Fprintln(cmd.OutOrStdout(), "linked: yes")
	} else {
		fmt.Fprintln(cmd.OutOrStdout(), "linked: no")
	}

	return nil
}
