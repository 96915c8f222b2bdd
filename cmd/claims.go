package cmd

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/agchavez/interlace/internal/apiclient"
	"github.com/agchavez/interlace/internal/export"
	"github.com/agchavez/interlace/internal/models"
	"github.com/agchavez/interlace/internal/services"
	"github.com/agchavez/interlace/internal/workflow"
)

var claimsCmd = &cobra.Command{
	Use:   "claims",
	Short: "Review and edit claims",
}

var (
	listFilter models.ClaimFilter
	listStatus string

	createInput models.CreateClaimInput
	createAlert bool

	approveNumber, approveDiscard, approveObservations  string
	approveClaimFile, approveCreditMemo, approveObsFile string

	rejectReason, rejectObsFile string

	editDescription, editObservations, editDiscard, editNumber, editType string
	editAdd, editRemove                                                  []string

	downloadOutput string
)

func init() {
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List claims",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(ctx context.Context, a *app) error {
				return runClaimsList(ctx, a, cmd)
			})
		},
	}
	listCmd.Flags().StringVar(&listFilter.Search, "search", "", "free text search")
	listCmd.Flags().StringVar(&listStatus, "status", "", "PENDIENTE, EN_REVISION, APROBADO or RECHAZADO")
	listCmd.Flags().IntVar(&listFilter.Tracker, "tracker", 0, "only claims for this tracker")
	listCmd.Flags().StringVar(&listFilter.DistributorCenter, "center", "", "distributor center")
	listCmd.Flags().IntVar(&listFilter.Limit, "limit", 20, "page size")
	listCmd.Flags().IntVar(&listFilter.Offset, "offset", 0, "page offset")

	showCmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show a claim with its attachments and available actions",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClaim(args[0], func(ctx context.Context, a *app, ts apiclient.TokenSource, id int) error {
				claim, err := a.claims.Fresh(ctx, ts, id)
				if err != nil {
					return err
				}
				return printClaim(cmd, claim)
			})
		},
	}

	createCmd := &cobra.Command{
		Use:   "create",
		Short: "File a new claim against a tracker",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(ctx context.Context, a *app) error {
				ts, err := a.current(ctx)
				if err != nil {
					return err
				}
				in := createInput
				in.ClaimType = models.ClaimType(strings.ToUpper(string(in.ClaimType)))
				if createAlert {
					in.Type = models.KindQualityAlert
				}
				claim, err := a.claims.Create(ctx, ts, in)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.ErrOrStderr(), "%s %d created.\n", claim.Label(), claim.ID)
				return printClaim(cmd, claim)
			})
		},
	}
	createCmd.Flags().IntVar(&createInput.Tracker, "tracker", 0, "tracker the claim is filed against")
	createCmd.Flags().StringVar((*string)(&createInput.ClaimType), "claim-type", "", "FALTANTE, SOBRANTE or DAÑOS_CALIDAD_TRANSPORTE")
	createCmd.Flags().StringVar(&createInput.Description, "description", "", "description")
	createCmd.Flags().StringVar(&createInput.Observations, "observations", "", "observations")
	createCmd.Flags().BoolVar(&createAlert, "alert", false, "file a local quality alert instead of a claim")

	takeCmd := &cobra.Command{
		Use:   "take <id>",
		Short: "Take a pending claim into review",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAction(cmd, args[0], workflow.ActionTake, func(ctx context.Context, a *app, ts apiclient.TokenSource, claim *models.Claim, reviewer int) error {
				return a.claims.Take(ctx, ts, claim, workflow.TakeRequest{ReviewerID: reviewer})
			})
		},
	}

	approveCmd := &cobra.Command{
		Use:   "approve <id>",
		Short: "Approve a claim under review",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAction(cmd, args[0], workflow.ActionApprove, func(ctx context.Context, a *app, ts apiclient.TokenSource, claim *models.Claim, reviewer int) error {
				req := workflow.ApproveRequest{
					ReviewerID:   reviewer,
					ClaimNumber:  approveNumber,
					DiscardDoc:   approveDiscard,
					Observations: approveObservations,
				}
				var err error
				if req.ClaimFile, err = readFile(approveClaimFile); err != nil {
					return err
				}
				if req.CreditMemoFile, err = readFile(approveCreditMemo); err != nil {
					return err
				}
				if req.ObservationsFile, err = readFile(approveObsFile); err != nil {
					return err
				}
				return a.claims.Approve(ctx, ts, claim, req)
			})
		},
	}
	approveCmd.Flags().StringVar(&approveNumber, "number", "", "claim number assigned by the carrier")
	approveCmd.Flags().StringVar(&approveDiscard, "discard-doc", "", "discard document")
	approveCmd.Flags().StringVar(&approveObservations, "observations", "", "observations")
	approveCmd.Flags().StringVar(&approveClaimFile, "claim-file", "", "path to the claim document")
	approveCmd.Flags().StringVar(&approveCreditMemo, "credit-memo", "", "path to the credit memo")
	approveCmd.Flags().StringVar(&approveObsFile, "observations-file", "", "path to the observations document")

	rejectCmd := &cobra.Command{
		Use:   "reject <id>",
		Short: "Reject a claim under review",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAction(cmd, args[0], workflow.ActionReject, func(ctx context.Context, a *app, ts apiclient.TokenSource, claim *models.Claim, reviewer int) error {
				file, err := readFile(rejectObsFile)
				if err != nil {
					return err
				}
				return a.claims.Reject(ctx, ts, claim, workflow.RejectRequest{
					ReviewerID:       reviewer,
					Reason:           rejectReason,
					ObservationsFile: file,
				})
			})
		},
	}
	rejectCmd.Flags().StringVar(&rejectReason, "reason", "", "reason for the rejection")
	rejectCmd.Flags().StringVar(&rejectObsFile, "observations-file", "", "path to the observations document")

	editCmd := &cobra.Command{
		Use:   "edit <id>",
		Short: "Change fields and attachments without moving the status",
		Long: `Change fields and attachments of a claim that is still open.

Attachments are given per slot, e.g.
  --add photos_damaged_boxes=./box1.jpg --remove photos_damaged_boxes=31`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAction(cmd, args[0], workflow.ActionEdit, func(ctx context.Context, a *app, ts apiclient.TokenSource, claim *models.Claim, _ int) error {
				req, err := buildEdit(cmd)
				if err != nil {
					return err
				}
				return a.claims.Edit(ctx, ts, claim, req)
			})
		},
	}
	editCmd.Flags().StringVar(&editType, "claim-type", "", "new claim type")
	editCmd.Flags().StringVar(&editDescription, "description", "", "new description")
	editCmd.Flags().StringVar(&editObservations, "observations", "", "new observations")
	editCmd.Flags().StringVar(&editDiscard, "discard-doc", "", "new discard document")
	editCmd.Flags().StringVar(&editNumber, "number", "", "new claim number")
	editCmd.Flags().StringArrayVar(&editAdd, "add", nil, "category=path of a file to upload")
	editCmd.Flags().StringArrayVar(&editRemove, "remove", nil, "category=id of a stored attachment to drop")

	downloadCmd := &cobra.Command{
		Use:   "download <id> <filename>",
		Short: "Download a stored attachment",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClaim(args[0], func(ctx context.Context, a *app, ts apiclient.TokenSource, id int) error {
				data, _, err := a.claims.Download(ctx, ts, id, args[1])
				if err != nil {
					return err
				}
				out := downloadOutput
				if out == "" {
					out = args[1]
				}
				if err := os.WriteFile(out, data, 0o644); err != nil {
					return errors.Wrapf(err, "write %s", out)
				}
				fmt.Fprintf(cmd.ErrOrStderr(), "Saved %d bytes to %s\n", len(data), out)
				return nil
			})
		},
	}
	downloadCmd.Flags().StringVarP(&downloadOutput, "output", "o", "", "destination path")

	claimsCmd.AddCommand(listCmd, showCmd, createCmd, takeCmd, approveCmd, rejectCmd, editCmd, downloadCmd)
	rootCmd.AddCommand(claimsCmd)
}

func runClaimsList(ctx context.Context, a *app, cmd *cobra.Command) error {
	ts, err := a.current(ctx)
	if err != nil {
		return err
	}
	filter := listFilter
	filter.Status = models.ClaimStatus(strings.ToUpper(listStatus))

	page, err := a.claims.List(ctx, ts, filter)
	if err != nil {
		return err
	}
	if jsonOutput {
		return printJSON(cmd.OutOrStdout(), page)
	}

	rows := make([][]string, 0, len(page.Results))
	for _, c := range page.Results {
		rows = append(rows, []string{
			strconv.Itoa(c.ID),
			c.Label(),
			export.StatusLabel(c.Status),
			export.ClaimTypeLabel(c.ClaimType),
			strconv.Itoa(c.Tracker),
			c.AssignedTo.FullName(),
			c.ClaimNumber,
		})
	}
	if err := printTable(cmd.OutOrStdout(), []string{"ID", "KIND", "STATUS", "TYPE", "TRACKER", "ASSIGNED", "NUMBER"}, rows); err != nil {
		return err
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "%d of %d claims\n", len(page.Results), page.Count)
	return nil
}

// withClaim parses the claim id and resolves the operator's credentials
func withClaim(arg string, fn func(ctx context.Context, a *app, ts apiclient.TokenSource, id int) error) error {
	id, err := strconv.Atoi(arg)
	if err != nil || id <= 0 {
		return errors.Errorf("invalid claim id %q", arg)
	}
	return withApp(func(ctx context.Context, a *app) error {
		ts, err := a.current(ctx)
		if err != nil {
			return err
		}
		return fn(ctx, a, ts, id)
	})
}

type actionFunc func(ctx context.Context, a *app, ts apiclient.TokenSource, claim *models.Claim, reviewer int) error

// runAction loads the current claim, applies the action as the signed in
// operator and prints the outcome.
func runAction(cmd *cobra.Command, arg string, action workflow.Action, fn actionFunc) error {
	return withClaim(arg, func(ctx context.Context, a *app, ts apiclient.TokenSource, id int) error {
		tok, err := ts.Token(ctx)
		if err != nil {
			return err
		}
		claim, err := a.claims.Fresh(ctx, ts, id)
		if err != nil {
			return err
		}
		if err := fn(ctx, a, ts, claim, tok.UserID); err != nil {
			return err
		}
		fmt.Fprintln(cmd.ErrOrStderr(), services.SuccessMessage(action, claim.ID))
		return printClaim(cmd, claim)
	})
}

func buildEdit(cmd *cobra.Command) (workflow.EditRequest, error) {
	var req workflow.EditRequest
	flags := cmd.Flags()
	if flags.Changed("claim-type") {
		t := models.ClaimType(strings.ToUpper(editType))
		req.ClaimType = &t
	}
	if flags.Changed("description") {
		req.Description = &editDescription
	}
	if flags.Changed("observations") {
		req.Observations = &editObservations
	}
	if flags.Changed("discard-doc") {
		req.DiscardDoc = &editDiscard
	}
	if flags.Changed("number") {
		req.ClaimNumber = &editNumber
	}

	req.Deltas = map[models.Category]workflow.AttachmentDelta{}
	for _, arg := range editAdd {
		cat, path, err := splitSlot(arg)
		if err != nil {
			return req, err
		}
		file, err := readFile(path)
		if err != nil {
			return req, err
		}
		delta := req.Deltas[cat]
		delta.Add = append(delta.Add, *file)
		req.Deltas[cat] = delta
	}
	for _, arg := range editRemove {
		cat, raw, err := splitSlot(arg)
		if err != nil {
			return req, err
		}
		id, err := strconv.Atoi(raw)
		if err != nil {
			return req, errors.Errorf("invalid attachment id %q", raw)
		}
		delta := req.Deltas[cat]
		delta.Remove(id)
		req.Deltas[cat] = delta
	}
	return req, nil
}

func splitSlot(arg string) (models.Category, string, error) {
	cat, value, ok := strings.Cut(arg, "=")
	if !ok || cat == "" || value == "" {
		return "", "", errors.Errorf("expected category=value, got %q", arg)
	}
	return models.Category(cat), value, nil
}

func printClaim(cmd *cobra.Command, claim *models.Claim) error {
	form := workflow.FormFor(claim)
	if jsonOutput {
		return printJSON(cmd.OutOrStdout(), struct {
			Claim *models.Claim `json:"claim"`
			Form  workflow.Form `json:"form"`
		}{claim, form})
	}

	out := cmd.OutOrStdout()
	fields := [][]string{
		{"Claim", strconv.Itoa(claim.ID)},
		{"Kind", claim.Label()},
		{"Status", export.StatusLabel(claim.Status)},
		{"Type", export.ClaimTypeLabel(claim.ClaimType)},
		{"Tracker", strconv.Itoa(claim.Tracker)},
		{"Assigned to", claim.AssignedTo.FullName()},
		{"Claim number", claim.ClaimNumber},
		{"Discard doc", claim.DiscardDoc},
		{"Observations", claim.Observations},
		{"Reason", claim.Reason},
	}
	if err := printTable(out, []string{"FIELD", "VALUE"}, fields); err != nil {
		return err
	}

	fmt.Fprintln(out)
	slots := make([][]string, 0, len(form.Slots))
	for _, s := range form.Slots {
		ids := make([]string, 0, len(s.Existing))
		for _, att := range s.Existing {
			ids = append(ids, fmt.Sprintf("%d:%s", att.ID, att.Name))
		}
		slots = append(slots, []string{
			string(s.Category),
			fmt.Sprintf("%d/%d", len(s.Existing), s.MaxFiles),
			strconv.FormatBool(s.Enabled),
			strings.Join(ids, " "),
		})
	}
	if err := printTable(out, []string{"SLOT", "FILES", "UPLOADS", "STORED"}, slots); err != nil {
		return err
	}

	actions := make([]string, 0, len(form.Actions))
	for _, act := range form.Actions {
		actions = append(actions, string(act))
	}
	if len(actions) == 0 {
		actions = append(actions, "none")
	}
	_, err := fmt.Fprintf(out, "\nActions: %s\n", strings.Join(actions, ", "))
	return err
}
