package bot

import (
	"bytes"
	"image"
	"image/jpeg"
	"image/png"
	"strings"
	"testing"

	"github.com/BTreeMap/ClassPipe/internal/models"
)

func pngDoc(t *testing.T) models.Document {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 30, 40))); err != nil {
		t.Fatalf("encoding png: %v", err)
	}
	return models.Document{Filename: "image.png", MimeType: "image/png", Data: buf.Bytes()}
}

func jpegDoc(t *testing.T) models.Document {
	t.Helper()
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 40, 30)), nil); err != nil {
		t.Fatalf("encoding jpeg: %v", err)
	}
	return models.Document{Filename: "image.jpg", MimeType: "image/jpeg", Data: buf.Bytes()}
}

func TestImageToPDFWizardFlow(t *testing.T) {
	f := newFixture(t)
	f.seedStudent()

	f.say(studentPhone, "convert images to pdf")
	f.wantReplyContains(studentPhone, "turn your images into a PDF")

	f.sayDoc(studentPhone, pngDoc(t))
	f.wantReplyContains(studentPhone, "Image 1 received")
	f.sayDoc(studentPhone, jpegDoc(t))
	f.wantReplyContains(studentPhone, "Image 2 received")

	f.say(studentPhone, "1")

	if len(f.msg.SentDocuments) != 1 {
		t.Fatalf("SentDocuments = %d, want 1", len(f.msg.SentDocuments))
	}
	sent := f.msg.SentDocuments[0]
	if sent.To != studentPhone {
		t.Errorf("document went to %s", sent.To)
	}
	if sent.Doc.MimeType != "application/pdf" || !strings.HasSuffix(sent.Doc.Filename, ".pdf") {
		t.Errorf("sent document is not a PDF: %s %s", sent.Doc.Filename, sent.Doc.MimeType)
	}
	if !bytes.HasPrefix(sent.Doc.Data, []byte("%PDF")) {
		t.Error("sent document data is not a PDF")
	}
	if !strings.Contains(sent.Doc.Caption, "2 page(s)") {
		t.Errorf("caption = %q", sent.Doc.Caption)
	}
	if sent.Doc.URL == "" {
		t.Error("converted PDF was not stored")
	}
	if _, ok := f.states.Get(studentPhone); ok {
		t.Error("state not cleared after conversion")
	}
}

func TestImageToPDFWizardRejectsNonImage(t *testing.T) {
	f := newFixture(t)
	f.seedStudent()

	f.say(studentPhone, "convert images to pdf")
	f.sayDoc(studentPhone, models.Document{Filename: "work.pdf", MimeType: "application/pdf", Data: []byte("%PDF")})
	f.wantReplyContains(studentPhone, "That file is not an image")

	st, _ := f.states.Get(studentPhone)
	if st.Wizard == nil || st.Wizard.Kind != models.WizardImageToPDF {
		t.Fatalf("wizard lost after rejection: %+v", st.Wizard)
	}
	if len(st.Wizard.ImageToPDF.Pages) != 0 {
		t.Errorf("rejected file was staged: %d pages", len(st.Wizard.ImageToPDF.Pages))
	}
}

func TestImageToPDFWizardFinishWithoutImages(t *testing.T) {
	f := newFixture(t)
	f.seedStudent()

	f.say(studentPhone, "convert images to pdf")
	f.say(studentPhone, "1")
	f.wantReplyContains(studentPhone, "haven't received any images")

	f.say(studentPhone, "0")
	f.wantReplyContains(studentPhone, "cancelled")
	if _, ok := f.states.Get(studentPhone); ok {
		t.Error("state survived cancellation")
	}
}

func TestImageToPDFMenuEntryBothRoles(t *testing.T) {
	f := newFixture(t)
	f.seedTeacher()
	f.seedStudent()

	f.say(teacherPhone, "halo")
	f.wantReplyContains(teacherPhone, "Convert images to PDF")
	f.say(teacherPhone, "6")
	f.wantReplyContains(teacherPhone, "turn your images into a PDF")

	f.say(studentPhone, "halo")
	f.say(studentPhone, "5")
	f.wantReplyContains(studentPhone, "turn your images into a PDF")
}
