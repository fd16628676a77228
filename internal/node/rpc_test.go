package node

import (
	"testing"

	"github.com/btcsuite/btcd/btcjson"
)

func TestNewRPCClient(t *testing.T) {
	tests := []struct {
		name     string
		host     string
		port     int
		username string
		password string
		wantErr  bool
	}{
		{
			name:     "valid configuration",
			host:     "localhost",
			port:     8332,
			username: "user",
			password: "pass",
			wantErr:  false,
		},
		{
			name:     "empty credentials",
			host:     "localhost",
			port:     8332,
			username: "",
			password: "",
			wantErr:  false, // client creation does not authenticate
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, err := NewRPCClient(tt.host, tt.port, tt.username, tt.password)
			if (err != nil) != tt.wantErr {
				t.Errorf("NewRPCClient() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if err == nil {
				if client == nil {
					t.Fatal("NewRPCClient() returned nil client")
				}
				client.Close()
			}
		})
	}
}

func TestParseBits(t *testing.T) {
	tests := []struct {
		name    string
		bitsHex string
		want    uint32
		wantErr bool
	}{
		{
			name:    "difficulty one",
			bitsHex: "1d00ffff",
			want:    0x1d00ffff,
		},
		{
			name:    "historic mainnet bits",
			bitsHex: "1b0404cb",
			want:    0x1b0404cb,
		},
		{
			name:    "regtest bits",
			bitsHex: "207fffff",
			want:    0x207fffff,
		},
		{
			name:    "not hex",
			bitsHex: "zzzz",
			wantErr: true,
		},
		{
			name:    "too wide",
			bitsHex: "11d00ffff",
			wantErr: true,
		},
		{
			name:    "empty",
			bitsHex: "",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseBits(tt.bitsHex)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseBits() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err == nil && got != tt.want {
				t.Errorf("ParseBits() = %08x, want %08x", got, tt.want)
			}
		})
	}
}

func TestHeaderFromVerbose(t *testing.T) {
	tests := []struct {
		name    string
		verbose *btcjson.GetBlockHeaderVerboseResult
		wantErr bool
	}{
		{
			name: "valid header",
			verbose: &btcjson.GetBlockHeaderVerboseResult{
				Hash:         "00000000d1145790a8694403d4063f323d499e655c83426834d4ce2f8dd4a2ee",
				Height:       170,
				Time:         1231731025,
				Bits:         "1d00ffff",
				PreviousHash: "000000002a22cfee1f2c846adbd12b3e183d4f97683f85dad08a79780a84bd55",
			},
		},
		{
			name: "genesis has no previous hash",
			verbose: &btcjson.GetBlockHeaderVerboseResult{
				Hash:   "000000000019d6689c085ae165831e934ff763ae46a2a6c172b3f1b60a8ce26f",
				Height: 0,
				Time:   1231006505,
				Bits:   "1d00ffff",
			},
		},
		{
			name: "bad bits",
			verbose: &btcjson.GetBlockHeaderVerboseResult{
				Hash:   "00000000d1145790a8694403d4063f323d499e655c83426834d4ce2f8dd4a2ee",
				Height: 170,
				Time:   1231731025,
				Bits:   "nonsense",
			},
			wantErr: true,
		},
		{
			name: "bad hash",
			verbose: &btcjson.GetBlockHeaderVerboseResult{
				Hash:   "not-a-hash",
				Height: 170,
				Time:   1231731025,
				Bits:   "1d00ffff",
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			header, err := HeaderFromVerbose(tt.verbose)
			if (err != nil) != tt.wantErr {
				t.Fatalf("HeaderFromVerbose() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil {
				return
			}

			if header.Height != int64(tt.verbose.Height) {
				t.Errorf("Height = %d, want %d", header.Height, tt.verbose.Height)
			}
			if header.Time != tt.verbose.Time {
				t.Errorf("Time = %d, want %d", header.Time, tt.verbose.Time)
			}
			if header.Hash.String() != tt.verbose.Hash {
				t.Errorf("Hash = %s, want %s", header.Hash, tt.verbose.Hash)
			}
			if tt.verbose.PreviousHash != "" && header.PrevHash.String() != tt.verbose.PreviousHash {
				t.Errorf("PrevHash = %s, want %s", header.PrevHash, tt.verbose.PreviousHash)
			}
		})
	}
}
