package bot

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/BTreeMap/ClassPipe/internal/filestore"
	"github.com/BTreeMap/ClassPipe/internal/models"
	"github.com/BTreeMap/ClassPipe/internal/pdf"
)

// maxImagePages caps one conversion batch.
const maxImagePages = 20

const imageToPDFIntroText = "Let's turn your images into a PDF. Send me the photos one at a time (JPG or PNG).\n" +
	"Send 1 when you're done, 0 to cancel."

// startImageToPDFWizard enters the image collection loop.
func (e *Engine) startImageToPDFWizard(ctx context.Context, user *models.User, st *models.ConversationState) {
	st.Wizard = &models.WizardData{Kind: models.WizardImageToPDF, ImageToPDF: &models.ImageToPDFData{}}
	st.MenuMode = models.MenuModeNone
	e.states.Set(user.Phone, *st)
	e.send(ctx, user.Phone, imageToPDFIntroText)
}

// handleImageToPDF handles one turn of the conversion wizard: stage an
// incoming image, finish on 1, cancel on 0.
func (e *Engine) handleImageToPDF(ctx context.Context, user *models.User, st *models.ConversationState, resp models.Response) {
	data := st.Wizard.ImageToPDF
	if data == nil {
		data = &models.ImageToPDFData{}
		st.Wizard.ImageToPDF = data
	}

	if resp.Document != nil {
		if !isImage(resp.Document.MimeType) {
			e.send(ctx, user.Phone, "That file is not an image. Send a JPG or PNG photo, 1 to finish, or 0 to cancel.")
			return
		}
		if len(data.Pages) >= maxImagePages {
			e.send(ctx, user.Phone, fmt.Sprintf("That's the maximum of %d images for one PDF. Send 1 to finish, or 0 to cancel.", maxImagePages))
			return
		}
		data.Names = append(data.Names, resp.Document.Filename)
		data.Mimes = append(data.Mimes, resp.Document.MimeType)
		data.Pages = append(data.Pages, resp.Document.Data)
		e.states.Set(user.Phone, *st)
		e.send(ctx, user.Phone, fmt.Sprintf("Image %d received. Send more, 1 to finish, or 0 to cancel.", len(data.Pages)))
		return
	}

	switch strings.TrimSpace(resp.Body) {
	case "0":
		e.cancelWizard(ctx, user)
	case "1":
		if len(data.Pages) == 0 {
			e.send(ctx, user.Phone, "I haven't received any images yet. Send one first, or 0 to cancel.")
			return
		}
		e.finishImageToPDF(ctx, user, st)
	default:
		e.send(ctx, user.Phone, "Please send an image, 1 to finish, or 0 to cancel.")
	}
}

// finishImageToPDF renders the staged images, stores the result, and returns
// it to the user as a document.
func (e *Engine) finishImageToPDF(ctx context.Context, user *models.User, st *models.ConversationState) {
	data := st.Wizard.ImageToPDF

	pages := make([]pdf.Page, len(data.Pages))
	for i := range data.Pages {
		pages[i] = pdf.Page{Name: data.Names[i], MimeType: data.Mimes[i], Data: data.Pages[i]}
	}

	out, err := pdf.FromImages(pages)
	if err != nil {
		slog.Error("Bot finishImageToPDF render failed", "identity", user.Phone, "pages", len(pages), "error", err)
		data.Names, data.Mimes, data.Pages = nil, nil, nil
		e.states.Set(user.Phone, *st)
		e.send(ctx, user.Phone, "I couldn't build a PDF from those images. Let's start over: send the first image again, or 0 to cancel.")
		return
	}

	now := e.now().In(e.loc)
	filename := fmt.Sprintf("images_%s.pdf", now.Format("20060102_150405"))

	url, err := e.files.Upload(ctx, filestore.ObjectKey("IMG2PDF", filename, now), out, "application/pdf")
	if err != nil {
		// The inline bytes still reach the user; only the hosted copy is lost.
		slog.Warn("Bot finishImageToPDF upload failed, sending inline only", "identity", user.Phone, "error", err)
		url = ""
	}

	e.states.Clear(user.Phone)
	e.sendDocument(ctx, user.Phone, models.Document{
		Filename: filename,
		MimeType: "application/pdf",
		Caption:  fmt.Sprintf("Here is your PDF with %d page(s).", len(pages)),
		URL:      url,
		Data:     out,
	})
}
