package cli

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/roach88/orchard/internal/domain"
	"github.com/roach88/orchard/internal/notify"
	"github.com/roach88/orchard/internal/roster"
)

func renderConsultation(w io.Writer, c domain.Consultation) {
	fmt.Fprintf(w, "Consultation %s\n", c.ID)
	fmt.Fprintf(w, "  Orchard: %s\n", c.OrchardID)
	fmt.Fprintf(w, "  Grower:  %s %s\n", c.GrowerName, c.GrowerPhone)
	fmt.Fprintf(w, "  Doctor:  %s\n", c.DoctorID)
	fmt.Fprintf(w, "  Type:    %s\n", c.Type)
	fmt.Fprintf(w, "  Status:  %s\n", c.Status)
	if c.TargetAt != nil {
		fmt.Fprintf(w, "  At:      %s\n", c.TargetAt.Format("2006-01-02 15:04 MST"))
	}
	if c.Prescription != nil {
		fmt.Fprintf(w, "  Rx:      %s (%s)\n", c.Prescription.ID, c.Prescription.Status)
	}
}

func renderPrescription(w io.Writer, p domain.Prescription) {
	fmt.Fprintf(w, "Prescription %s\n", p.ID)
	fmt.Fprintf(w, "  Consultation: %s\n", p.ConsultationID)
	fmt.Fprintf(w, "  Doctor:       %s, %s\n", p.DoctorName, p.HospitalName)
	fmt.Fprintf(w, "  Diagnosis:    %s\n", p.IssueDiagnosed)
	fmt.Fprintf(w, "  Status:       %s\n", p.Status)
	fmt.Fprintf(w, "  Issued:       %s\n", p.IssuedOn)
	if !p.FollowUpOn.IsZero() {
		fmt.Fprintf(w, "  Follow-up:    %s\n", p.FollowUpOn)
	}
	if len(p.ActionItems) > 0 {
		tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "  #\tCATEGORY\tPRODUCT\tDOSAGE\tCOST")
		for i, item := range p.ActionItems {
			fmt.Fprintf(tw, "  %d\t%s\t%s\t%s\t%s\n", i+1, item.Category, item.ProductName, item.Dosage, notify.FormatAmount(item.EstimatedCost))
		}
		_ = tw.Flush()
	}
	fmt.Fprintf(w, "  Total:        %s\n", notify.FormatAmount(p.TotalCost()))
}

func renderConsultationTable(w io.Writer, cs []domain.Consultation) {
	if len(cs) == 0 {
		fmt.Fprintln(w, "No consultations.")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSTATUS\tDOCTOR\tTYPE\tGROWER\tRX")
	for _, c := range cs {
		rx := "-"
		if c.Prescription != nil {
			rx = string(c.Prescription.Status)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n", c.ID, c.Status, c.DoctorID, c.Type, c.GrowerName, rx)
	}
	_ = tw.Flush()
}

func renderPrescriptionTable(w io.Writer, ps []domain.Prescription) {
	if len(ps) == 0 {
		fmt.Fprintln(w, "No prescriptions.")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSTATUS\tDOCTOR\tDIAGNOSIS\tITEMS\tTOTAL")
	for _, p := range ps {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%s\n", p.ID, p.Status, p.DoctorName, p.IssueDiagnosed, len(p.ActionItems), notify.FormatAmount(p.TotalCost()))
	}
	_ = tw.Flush()
}

func renderDoctors(w io.Writer, doctors []roster.Doctor) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tSPECIALIZATION\tFACILITY\tAVAILABLE")
	for _, d := range doctors {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%t\n", d.ID, d.Name, d.Specialization, d.Facility, d.Available)
	}
	_ = tw.Flush()
}
