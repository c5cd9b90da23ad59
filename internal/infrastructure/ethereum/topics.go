package ethereum

import (
	_ "embed"
	"encoding/hex"
	"fmt"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"gopkg.in/yaml.v3"
)

//go:embed topics.yaml
var defaultTopicsYAML []byte

// TopicTable maps each tracked event to its topic0 hash. It is a value type
// so that a loaded table cannot be mutated through a shared reference.
type TopicTable struct {
	Spend     common.Hash
	Migration common.Hash
	Transfer  common.Hash
}

type topicSpec struct {
	Signature string `yaml:"signature"`
	Topic     string `yaml:"topic"`
}

type topicFile struct {
	Spend     *topicSpec `yaml:"spend"`
	Migration *topicSpec `yaml:"migration"`
	Transfer  *topicSpec `yaml:"transfer"`
}

// DefaultTopics returns the built-in topic table
func DefaultTopics() TopicTable {
	table, err := ParseTopics(defaultTopicsYAML)
	if err != nil {
		panic(fmt.Sprintf("embedded topic table is invalid: %v", err))
	}
	return table
}

// LoadTopics reads the topic table from path, or the built-in table when
// path is empty. Call it once at startup.
func LoadTopics(path string) (TopicTable, error) {
	if path == "" {
		return DefaultTopics(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return TopicTable{}, fmt.Errorf("failed to read topic table: %w", err)
	}
	return ParseTopics(data)
}

// ParseTopics parses a YAML topic table
func ParseTopics(data []byte) (TopicTable, error) {
	var file topicFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return TopicTable{}, fmt.Errorf("failed to parse topic table: %w", err)
	}

	var table TopicTable
	var err error
	if table.Spend, err = parseTopic("spend", file.Spend); err != nil {
		return TopicTable{}, err
	}
	if table.Migration, err = parseTopic("migration", file.Migration); err != nil {
		return TopicTable{}, err
	}
	if table.Transfer, err = parseTopic("transfer", file.Transfer); err != nil {
		return TopicTable{}, err
	}

	if table.Spend == table.Migration || table.Spend == table.Transfer || table.Migration == table.Transfer {
		return TopicTable{}, fmt.Errorf("topic table contains duplicate hashes")
	}

	return table, nil
}

func parseTopic(name string, spec *topicSpec) (common.Hash, error) {
	if spec == nil {
		return common.Hash{}, fmt.Errorf("topic table is missing %q", name)
	}

	raw := strings.TrimSpace(spec.Topic)
	if !strings.HasPrefix(raw, "0x") || len(raw) != 66 {
		return common.Hash{}, fmt.Errorf("topic %q must be a 0x-prefixed 32-byte hash, got %q", name, raw)
	}
	if _, err := hex.DecodeString(raw[2:]); err != nil {
		return common.Hash{}, fmt.Errorf("topic %q is not hex: %w", name, err)
	}

	hash := common.HexToHash(raw)
	if hash == (common.Hash{}) {
		return common.Hash{}, fmt.Errorf("topic %q is empty", name)
	}
	return hash, nil
}

// PolicyTopics returns the topic0 values emitted by the policy contract
func (t TopicTable) PolicyTopics() []common.Hash {
	return []common.Hash{t.Spend, t.Migration}
}
