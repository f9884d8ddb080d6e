package notebook

import (
	"fmt"
	"strconv"
	"strings"
)

// PartitionPrefix starts every partition label.
const PartitionPrefix = "partition-"

// TestCase is one notebook with its partition label.
type TestCase struct {
	Partition string `json:"partition"`
	Notebook  Ref    `json:"notebook"`
}

// PartitionLabel returns the label of partition i.
func PartitionLabel(i int) string {
	return PartitionPrefix + strconv.Itoa(i)
}

// Partition assigns refs[i] to partition i mod n. The assignment only depends
// on the order of refs and n.
func Partition(refs []Ref, n int) ([]TestCase, error) {
	if n < 1 {
		return nil, fmt.Errorf("partition count must be >= 1, got %d", n)
	}
	cases := make([]TestCase, len(refs))
	for i, ref := range refs {
		cases[i] = TestCase{Partition: PartitionLabel(i % n), Notebook: ref}
	}
	return cases, nil
}

// SelectPartition keeps the cases labelled exactly label. An empty label
// keeps every case.
func SelectPartition(cases []TestCase, label string) []TestCase {
	if label == "" {
		return cases
	}
	out := make([]TestCase, 0, len(cases)/2+1)
	for _, c := range cases {
		if c.Partition == label {
			out = append(out, c)
		}
	}
	return out
}

// ParsePartitionLabel accepts "partition-2" or "2" and checks the index is
// below n. An empty input returns "".
func ParsePartitionLabel(s string, n int) (string, error) {
	if s == "" {
		return "", nil
	}
	idx, err := strconv.Atoi(strings.TrimPrefix(s, PartitionPrefix))
	if err != nil {
		return "", fmt.Errorf("invalid partition %q: want %s<i> or <i>", s, PartitionPrefix)
	}
	if idx < 0 || idx >= n {
		return "", fmt.Errorf("partition %q out of range: %d partition(s)", s, n)
	}
	return PartitionLabel(idx), nil
}
