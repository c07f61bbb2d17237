package ledger

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/hyperledger/fabric-sdk-go/pkg/core/config"
	"github.com/hyperledger/fabric-sdk-go/pkg/gateway"

	"github.com/frahmantamala/wallet-settlement/internal"
)

// fabricSession adapts the Fabric gateway SDK to the client's session
// interface.
type fabricSession struct {
	gw      *gateway.Gateway
	network *gateway.Network
}

func (s *fabricSession) Contract(name string) contractAPI {
	return s.network.GetContract(name)
}

func (s *fabricSession) Close() {
	s.gw.Close()
}

func connectGateway(cfg internal.LedgerConfig) (session, error) {
	wallet, err := gateway.NewFileSystemWallet(cfg.WalletPath)
	if err != nil {
		return nil, fmt.Errorf("failed to create wallet: %w", err)
	}

	if !wallet.Exists(cfg.Identity) {
		if err := populateWallet(wallet, cfg); err != nil {
			return nil, fmt.Errorf("failed to populate wallet: %w", err)
		}
	}

	gw, err := gateway.Connect(
		gateway.WithConfig(config.FromFile(filepath.Clean(cfg.ConnectionProfile))),
		gateway.WithIdentity(wallet, cfg.Identity),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to gateway: %w", err)
	}

	network, err := gw.GetNetwork(cfg.Channel)
	if err != nil {
		gw.Close()
		return nil, fmt.Errorf("failed to get network %s: %w", cfg.Channel, err)
	}

	return &fabricSession{gw: gw, network: network}, nil
}

func populateWallet(wallet *gateway.Wallet, cfg internal.LedgerConfig) error {
	cert, err := os.ReadFile(filepath.Clean(cfg.CertPath))
	if err != nil {
		return err
	}

	key, err := os.ReadFile(filepath.Clean(cfg.KeyPath))
	if err != nil {
		return err
	}

	identity := gateway.NewX509Identity(cfg.MSPID, string(cert), string(key))
	return wallet.Put(cfg.Identity, identity)
}
