package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/opendatakr/npscache/internal/workplace"
)

func newSaveCommand(opts *Options) *cobra.Command {
	var (
		seq            string
		name           string
		registrationNo string
		dataPeriod     string
		address        string
		subscribers    int64
		noticeAmount   int64
		newHires       int64
		leavers        int64
		update         bool
	)

	cmd := &cobra.Command{
		Use:   "save",
		Short: "Write one workplace locally and queue it for the authority",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer s.Close()

			record := workplace.Record{
				Seq:            seq,
				Name:           name,
				RegistrationNo: registrationNo,
				DataPeriod:     dataPeriod,
				Address:        address,
			}
			// Changed tells a flag left at its default apart from an explicit
			// zero, which is a real value for every figure here.
			flags := cmd.Flags()
			if flags.Changed("subscribers") {
				record.SubscriberCount = &subscribers
			}
			if flags.Changed("notice-amount") {
				record.MonthlyNoticeAmount = &noticeAmount
			}
			if flags.Changed("new-hires") {
				record.NewHireCount = &newHires
			}
			if flags.Changed("leavers") {
				record.LeaverCount = &leavers
			}

			operation := workplace.OperationInsert
			if update {
				operation = workplace.OperationUpdate
			}
			if err := s.coordinator.SaveRecord(cmd.Context(), record, operation); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "saved workplace %s (%s)\n", workplace.NormalizeSeq(seq), operation)
			return nil
		},
	}

	cmd.Flags().StringVar(&seq, "seq", "", "upstream workplace identifier")
	cmd.Flags().StringVar(&name, "name", "", "workplace name")
	cmd.Flags().StringVar(&registrationNo, "registration-no", "", "business registration number")
	cmd.Flags().StringVar(&dataPeriod, "data-period", "", "reporting period (YYYYMM)")
	cmd.Flags().StringVar(&address, "address", "", "road name address")
	cmd.Flags().Int64Var(&subscribers, "subscribers", 0, "pension subscriber count")
	cmd.Flags().Int64Var(&noticeAmount, "notice-amount", 0, "monthly premium notice amount in won")
	cmd.Flags().Int64Var(&newHires, "new-hires", 0, "subscribers gained in the period")
	cmd.Flags().Int64Var(&leavers, "leavers", 0, "subscribers lost in the period")
	cmd.Flags().BoolVar(&update, "update", false, "replace an existing record instead of inserting")
	_ = cmd.MarkFlagRequired("seq")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}
