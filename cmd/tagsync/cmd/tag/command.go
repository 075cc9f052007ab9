// Package tag provides the tag command.
package tag

import (
	"github.com/spf13/cobra"

	"github.com/agentstation/tagsync/internal/appcontext"
	"github.com/agentstation/tagsync/internal/cmd/cmdutil"
	"github.com/agentstation/tagsync/internal/cmd/output"
	"github.com/agentstation/tagsync/internal/cmd/prompt"
	"github.com/agentstation/tagsync/pkg/equipment"
	"github.com/agentstation/tagsync/pkg/errors"
	"github.com/agentstation/tagsync/pkg/reconcile"
)

// Flags holds the tag command flags.
type Flags struct {
	*cmdutil.ProjectFlags
	Tag        string
	Type       string
	Area       string
	Confirm    bool
	Link       bool
	Upstream   string
	Downstream string
}

// NewCommand creates the tag command with app dependencies.
func NewCommand(app appcontext.Interface) *cobra.Command {
	flags := &Flags{}

	cmd := &cobra.Command{
		Use:     "tag DRAWING HANDLE",
		GroupID: "core",
		Short:   "Tag a single drawing object",
		Long: `Tag assigns a tag number to one drawing object, adds it to the store and
stamps the object's marker.

Without --tag the next free tag for the equipment type is generated.
Without --type the classifier's suggestion is used when its confidence
reaches classify.auto_accept_threshold; below that you are asked.

When the tag already exists, --link attaches the object to the existing
record. Interactively you may also link or enter a different tag.`,
		Example: `  tagsync tag unit-100.yaml 2F -p "Unit 100"
  tagsync tag unit-100.yaml 2F -p "Unit 100" --tag PMP-010 --type Pump
  tagsync tag unit-100.yaml 31 -p "Unit 100" --upstream PMP-010`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, app, flags, args[0], args[1])
		},
	}

	flags.ProjectFlags = cmdutil.AddProjectFlag(cmd)
	cmd.Flags().StringVarP(&flags.Tag, "tag", "t", "", "Tag number to assign (generated when omitted)")
	cmd.Flags().StringVar(&flags.Type, "type", "", "Equipment type (classified when omitted)")
	cmd.Flags().StringVar(&flags.Area, "area", "", "Area code used for hierarchical tags")
	cmd.Flags().BoolVar(&flags.Confirm, "confirm", false, "Record the type as operator-confirmed")
	cmd.Flags().BoolVar(&flags.Link, "link", false, "Link to the existing record when the tag is taken")
	cmd.Flags().StringVar(&flags.Upstream, "upstream", "", "Tag of the upstream equipment")
	cmd.Flags().StringVar(&flags.Downstream, "downstream", "", "Tag of the downstream equipment")

	return cmd
}

func run(cmd *cobra.Command, app appcontext.Interface, flags *Flags, path, handle string) error {
	ctx := cmd.Context()

	session, err := cmdutil.Open(ctx, app, flags.Project, path)
	if err != nil {
		return err
	}
	engine := session.Client.Engine()
	ask := prompt.New(app.In(), cmd.ErrOrStderr())

	req := reconcile.TagRequest{
		Handle:        handle,
		Tag:           flags.Tag,
		EquipmentType: flags.Type,
		Area:          flags.Area,
		Confirmed:     flags.Confirm,
		OnDuplicate:   reconcile.DuplicateFail,
		UpstreamTag:   flags.Upstream,
		DownstreamTag: flags.Downstream,
	}
	if flags.Link {
		req.OnDuplicate = reconcile.DuplicateLink
	}

	if req.EquipmentType == "" {
		items, _, err := engine.Preview(ctx, session.Drawing)
		if err != nil {
			return err
		}
		item, ok := find(items, handle)
		if !ok {
			return errors.NewNotFoundError("equipment object", handle)
		}

		switch {
		case item.Confidence >= app.AutoAcceptThreshold():
			req.EquipmentType = item.EquipmentType
		case app.Interactive():
			typ, confirmed, err := ask.AcceptType(item.Block, item.EquipmentType, item.Confidence, app.AutoAcceptThreshold())
			if err != nil {
				return err
			}
			req.EquipmentType = typ
			req.Confirmed = req.Confirmed || confirmed
		default:
			app.Logger().Warn().
				Str("block", item.Block).
				Str("type", item.EquipmentType).
				Float64("confidence", item.Confidence).
				Msg("Low-confidence classification used; pass --type to override")
			req.EquipmentType = item.EquipmentType
		}
	}

	for {
		res, err := engine.TagOne(ctx, session.Project.ID, session.Drawing, req)
		if err == nil {
			return printResult(cmd, app, res)
		}

		var dup *errors.DuplicateTagError
		if !errors.As(err, &dup) || !app.Interactive() {
			return err
		}

		link, askErr := ask.Confirm("Tag "+dup.Tag+" already exists. Link this object to it?", false)
		if askErr != nil {
			return askErr
		}
		if link {
			req.OnDuplicate = reconcile.DuplicateLink
			continue
		}

		tag, askErr := ask.Ask("Enter a different tag (blank to cancel)", "")
		if askErr != nil {
			return askErr
		}
		if tag == "" {
			return err
		}
		req.Tag = tag
	}
}

func find(items []reconcile.PreviewItem, handle string) (reconcile.PreviewItem, bool) {
	for _, item := range items {
		if item.Handle == handle {
			return item, true
		}
	}
	return reconcile.PreviewItem{}, false
}

func printResult(cmd *cobra.Command, app appcontext.Interface, res *reconcile.TagResult) error {
	rec := res.Record
	action := "added"
	if res.Linked {
		action = "linked"
	}

	data := output.Data{
		Headers: []string{"Tag", "Type", "Area", "Action", "Handle", "ID"},
		Rows: [][]string{{
			rec.TagNumber, rec.EquipmentType, rec.Area, action, equipment.Deref(rec.SourceHandle), rec.ID,
		}},
		WideFrom: 4,
	}
	if err := cmdutil.Print(cmd, app, res, data); err != nil {
		return err
	}

	if res.Warning != nil {
		app.Logger().Warn().Err(res.Warning).Str("tag", rec.TagNumber).Msg("Tag stored but marker not written")
	}
	return nil
}
