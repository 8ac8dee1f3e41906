package serve

import (
	"github.com/ValentinKolb/dSync/rpc/common"
	"testing"
)

func TestParseShards(t *testing.T) {
	tests := map[string]struct {
		in      string
		want    []uint64
		wantErr bool
	}{
		"single":       {in: "200", want: []uint64{200}},
		"list":         {in: "200, 201", want: []uint64{200, 201}},
		"typed":        {in: "200=lockmgr,7", want: []uint64{200, 7}},
		"trailing":     {in: "1,", want: []uint64{1}},
		"empty":        {in: "", wantErr: true},
		"bad id":       {in: "abc", wantErr: true},
		"bad type":     {in: "1=lstore", wantErr: true},
		"duplicate id": {in: "1,1=lockmgr", wantErr: true},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			shards, err := parseShards(tt.in)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("Expected an error, got %v", shards)
				}
				return
			}
			if err != nil {
				t.Fatalf("parseShards failed: %v", err)
			}
			if len(shards) != len(tt.want) {
				t.Fatalf("Expected %d shards, got %d", len(tt.want), len(shards))
			}
			for i, shard := range shards {
				if shard.ShardID != tt.want[i] || shard.Type != common.ShardTypeLockManager {
					t.Errorf("Shard %d: expected %d (%s), got %d (%s)", i, tt.want[i], common.ShardTypeLockManager, shard.ShardID, shard.Type)
				}
			}
		})
	}
}
