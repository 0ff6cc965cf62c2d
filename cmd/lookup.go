package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/geo-hierarchy/internal/geometry"
	"github.com/sells-group/geo-hierarchy/internal/hierarchy"
	"github.com/sells-group/geo-hierarchy/internal/relation"
)

var lookupCmd = &cobra.Command{
	Use:   "lookup <geoid>",
	Short: "Show the hierarchy record and relationships for one entity",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signalContext(cmd.Context())
		defer stop()

		pool, err := openPool(ctx)
		if err != nil {
			return err
		}
		defer pool.Close()

		geoid := strings.TrimSpace(args[0])
		rec, err := hierarchy.NewPostgresStore(pool).Get(ctx, geoid)
		if err != nil {
			if eris.Is(err, geometry.ErrNotFound) {
				return eris.Errorf("lookup: no hierarchy record for %q", geoid)
			}
			return eris.Wrap(err, "lookup")
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(rec); err != nil {
			return eris.Wrap(err, "lookup: encode record")
		}

		if showEdges, _ := cmd.Flags().GetBool("edges"); !showEdges {
			return nil
		}

		rels := relation.NewPostgresStore(pool)
		for _, pair := range relation.Pairs {
			if pair.Child != rec.GeoType {
				continue
			}
			edges, err := rels.ParentsOf(ctx, pair, geoid)
			if err != nil {
				return eris.Wrap(err, "lookup")
			}
			for _, e := range edges {
				marker := " "
				if e.IsPrimary {
					marker = "*"
				}
				fmt.Printf("%s %-14s %-8s %6.2f%% %12.3f km²\n",
					marker, pair.Name, e.ParentGeoid, e.OverlapPct, e.OverlapAreaKm2)
			}
		}
		return nil
	},
}

var childrenCmd = &cobra.Command{
	Use:   "children <parent-geoid>",
	Short: "List entities whose primary parent at some level is the given geoid",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signalContext(cmd.Context())
		defer stop()

		pool, err := openPool(ctx)
		if err != nil {
			return err
		}
		defer pool.Close()

		childTypeStr, _ := cmd.Flags().GetString("type")
		parentTypeStr, _ := cmd.Flags().GetString("parent-type")
		childType, err := geometry.ParseGeoType(childTypeStr)
		if err != nil {
			return err
		}
		parentType, err := geometry.ParseGeoType(parentTypeStr)
		if err != nil {
			return err
		}

		ids, err := hierarchy.NewPostgresStore(pool).ChildrenByPrimary(ctx, childType, parentType, strings.TrimSpace(args[0]))
		if err != nil {
			return eris.Wrap(err, "children")
		}
		for _, id := range ids {
			fmt.Println(id)
		}
		return nil
	},
}

func init() {
	lookupCmd.Flags().Bool("edges", false, "also list the entity's relationship edges")
	childrenCmd.Flags().String("type", "zcta", "child entity type")
	childrenCmd.Flags().String("parent-type", "county", "ancestor level to match on")
	rootCmd.AddCommand(lookupCmd)
	rootCmd.AddCommand(childrenCmd)
}
