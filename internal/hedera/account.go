package hedera

import (
	"fmt"
	"strings"

	"github.com/hashgraph/hedera-protobufs-go/services"
	hsdk "github.com/hashgraph/hedera-sdk-go/v2"

	"github.com/quantumauth-io/hedera-wallet-agent/internal/walleterr"
)

// AccountID is shard.realm.num.
type AccountID struct {
	Shard int64
	Realm int64
	Num   int64
}

func (a AccountID) String() string {
	return fmt.Sprintf("%d.%d.%d", a.Shard, a.Realm, a.Num)
}

func (a AccountID) IsZero() bool { return a == AccountID{} }

func (a AccountID) proto() *services.AccountID {
	return &services.AccountID{
		ShardNum: a.Shard,
		RealmNum: a.Realm,
		Account:  &services.AccountID_AccountNum{AccountNum: a.Num},
	}
}

func accountFromProto(p *services.AccountID) AccountID {
	return AccountID{Shard: p.GetShardNum(), Realm: p.GetRealmNum(), Num: p.GetAccountNum()}
}

// ParseAccountID accepts "0.0.N", "0.0.N-checksum" or the account form
// "hedera:<net>:0.0.N". Alias accounts are not signers.
func ParseAccountID(s string) (AccountID, error) {
	s = strings.TrimSpace(s)
	if i := strings.LastIndex(s, ":"); i >= 0 {
		s = s[i+1:]
	}
	parts := strings.Split(s, ".")
	if len(parts) != 3 {
		return AccountID{}, walleterr.Validation("invalid account id %q", s)
	}
	for _, p := range parts {
		if p == "" || p[0] == '-' || p[0] == '+' {
			return AccountID{}, walleterr.Validation("invalid account id %q", s)
		}
	}
	id, err := hsdk.AccountIDFromString(s)
	if err != nil {
		return AccountID{}, walleterr.Validation("invalid account id %q", s)
	}
	if id.AliasKey != nil || id.AliasEvmAddress != nil {
		return AccountID{}, walleterr.Validation("alias account id %q cannot sign", s)
	}
	return AccountID{Shard: int64(id.Shard), Realm: int64(id.Realm), Num: int64(id.Account)}, nil
}
