// planview loads a table catalog from YAML, builds a query plan for a
// filter given on the command line, and prints the wire-level requests
// the plan compiles to. It is a dry-run tool: nothing talks to a store.
package main

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/spf13/cobra"

	"github.com/theory-cloud/indextheory/pkg/catalog"
	"github.com/theory-cloud/indextheory/pkg/filter"
	"github.com/theory-cloud/indextheory/pkg/plan"
)

var (
	catalogPath string
	whereFlags  []string
	sortAttr    string
	descending  bool
)

var rootCmd = &cobra.Command{
	Use:   "planview",
	Short: "Inspect how a filter would execute against a table's indexes",
	Long: `planview builds a query plan for a filter expression against a table
catalog declared in YAML, and prints the key conditions, residual filters
and placeholder maps that would be sent to the store.

Predicates are given as "attribute op value", for example:

  planview plan -f users.yaml --where "username sw al" --where "status eq active"

Repeated --where flags are AND-combined. Supported operators: eq ne co
sw ew pr gt ge lt le.`,
}

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Build and print the plan for a filter",
	RunE:  runPlan,
}

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Load a catalog file and print its declared surface",
	RunE:  runValidate,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&catalogPath, "file", "f", "", "catalog YAML file (required)")
	planCmd.Flags().StringArrayVar(&whereFlags, "where", nil, `predicate "attribute op value" (repeatable, AND-combined)`)
	planCmd.Flags().StringVar(&sortAttr, "sort", "", "sort attribute")
	planCmd.Flags().BoolVar(&descending, "desc", false, "sort descending")
	rootCmd.AddCommand(planCmd, validateCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func loadTable() (*catalog.Table, error) {
	if catalogPath == "" {
		return nil, fmt.Errorf("--file is required")
	}
	return catalog.LoadFile(catalogPath)
}

func runValidate(cmd *cobra.Command, args []string) error {
	table, err := loadTable()
	if err != nil {
		return err
	}
	fmt.Printf("table %s\n", table.Name())
	key := table.Key()
	fmt.Printf("  key: partition=%s", key.PartitionKey)
	if key.SortKey != "" {
		fmt.Printf(" sort=%s", key.SortKey)
	}
	fmt.Println()
	for _, idx := range table.AllIndexes() {
		if idx.IsPrimary() {
			continue
		}
		fmt.Printf("  index %s (%s): partition=%s", idx.Name, idx.Type, idx.PartitionKey)
		if idx.SortKey != "" {
			fmt.Printf(" sort=%s", idx.SortKey)
		}
		fmt.Println()
	}
	uniques := table.Uniques()
	names := make([]string, 0, len(uniques))
	for name := range uniques {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Printf("  unique %s\n", name)
	}
	fmt.Printf("  policy: maxQueries=%d allowScan=%v\n", table.MaxQueries(), table.ScanAllowed())
	return nil
}

func runPlan(cmd *cobra.Command, args []string) error {
	table, err := loadTable()
	if err != nil {
		return err
	}

	expr, err := parseWhere(whereFlags)
	if err != nil {
		return err
	}

	var opts []plan.Option
	if sortAttr != "" {
		opts = append(opts, plan.WithSort(sortAttr, descending))
	}

	p, err := plan.Build(table, expr, opts...)
	if err != nil {
		return err
	}

	reqs, err := p.Compile()
	if err != nil {
		return err
	}

	fmt.Printf("mode: %s\n", p.Mode)
	if p.Sort != nil {
		order := "ascending"
		if p.Sort.Descending {
			order = "descending"
		}
		where := "store"
		if p.SortInMemory {
			where = "memory"
		}
		fmt.Printf("sort: %s %s (%s)\n", p.Sort.Attribute, order, where)
	}
	for i, req := range reqs {
		fmt.Printf("request %d: %s", i+1, req.Operation)
		if req.IndexName != "" {
			fmt.Printf(" index=%s", req.IndexName)
		}
		fmt.Println()
		if req.KeyConditionExpression != "" {
			fmt.Printf("  key:    %s\n", req.KeyConditionExpression)
		}
		if req.FilterExpression != "" {
			fmt.Printf("  filter: %s\n", req.FilterExpression)
		}
		printMap("  names:", req.ExpressionAttributeNames)
		printValues("  values:", req.ExpressionAttributeValues)
	}
	return nil
}

// parseWhere turns repeated "attribute op value" flags into an
// AND-combined expression. Values parse as int64, then bool, then string.
func parseWhere(flags []string) (filter.Expression, error) {
	exprs := make([]filter.Expression, 0, len(flags))
	for _, raw := range flags {
		fields := strings.SplitN(strings.TrimSpace(raw), " ", 3)
		if len(fields) < 2 {
			return nil, fmt.Errorf("predicate %q: want \"attribute op value\"", raw)
		}
		attribute := fields[0]
		op := filter.Operator(strings.ToLower(fields[1]))

		if op == filter.Pr {
			exprs = append(exprs, filter.Present(attribute))
			continue
		}
		if len(fields) < 3 {
			return nil, fmt.Errorf("predicate %q: operator %s needs a value", raw, op)
		}
		exprs = append(exprs, filter.Where(attribute, op, parseValue(fields[2])))
	}
	if len(exprs) == 0 {
		return nil, nil
	}
	return filter.And(exprs...), nil
}

func parseValue(raw string) any {
	if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return n
	}
	if b, err := strconv.ParseBool(raw); err == nil {
		return b
	}
	return raw
}

func printValues(label string, m map[string]types.AttributeValue) {
	if len(m) == 0 {
		return
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	fmt.Println(label)
	for _, k := range keys {
		fmt.Printf("    %s -> %s\n", k, formatValue(m[k]))
	}
}

func formatValue(av types.AttributeValue) string {
	switch v := av.(type) {
	case *types.AttributeValueMemberS:
		return fmt.Sprintf("S %q", v.Value)
	case *types.AttributeValueMemberN:
		return "N " + v.Value
	case *types.AttributeValueMemberBOOL:
		return fmt.Sprintf("BOOL %v", v.Value)
	default:
		return fmt.Sprintf("%T", av)
	}
}

func printMap(label string, m map[string]string) {
	if len(m) == 0 {
		return
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	fmt.Println(label)
	for _, k := range keys {
		fmt.Printf("    %s -> %s\n", k, m[k])
	}
}
