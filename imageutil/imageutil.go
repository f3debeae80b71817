// Package imageutil converts images to and from the base64 payloads carried
// by multimodal prompts.
package imageutil

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"image/draw"
	"image/jpeg"
	"os"

	// Decoders for formats accepted by DecodeBase64.
	_ "image/gif"
	_ "image/png"

	"github.com/brachiolab/unillm/llm"
)

// JPEGQuality is the quality EncodeBase64 and Part encode with.
const JPEGQuality = 95

// EncodeJPEG encodes img as JPEG. Alpha is dropped.
func EncodeJPEG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: JPEGQuality}); err != nil {
		return nil, fmt.Errorf("failed to encode JPEG: %w", err)
	}
	return buf.Bytes(), nil
}

// EncodeBase64 encodes img as JPEG and returns it as standard base64.
func EncodeBase64(img image.Image) (string, error) {
	data, err := EncodeJPEG(img)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(data), nil
}

// DecodeBase64 decodes a standard base64 string holding a JPEG, PNG or GIF
// image and returns it with every pixel made opaque RGB.
func DecodeBase64(s string) (*image.RGBA, error) {
	data, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("failed to decode base64 image: %w", err)
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}
	return ToRGB(img), nil
}

// ToRGB draws img over an opaque black background, discarding transparency.
func ToRGB(img image.Image) *image.RGBA {
	bounds := img.Bounds()
	rgb := image.NewRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	draw.Draw(rgb, rgb.Bounds(), image.Opaque, image.Point{}, draw.Src)
	draw.Draw(rgb, rgb.Bounds(), img, bounds.Min, draw.Over)
	return rgb
}

// Part encodes img as JPEG and wraps it as a prompt image part.
func Part(img image.Image) (llm.Part, error) {
	data, err := EncodeJPEG(img)
	if err != nil {
		return llm.Part{}, err
	}
	return llm.ImagePart("image/jpeg", data), nil
}

// DataURL renders an image part as a data: URL, the form OpenAI-compatible
// APIs accept for inline images.
func DataURL(img *llm.Image) string {
	mimeType := img.MIMEType
	if mimeType == "" {
		mimeType = "image/jpeg"
	}
	return "data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(img.Data)
}

// ReadFile decodes the JPEG, PNG or GIF image stored at path.
func ReadFile(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open image %s: %w", path, err)
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("failed to decode image %s: %w", path, err)
	}
	return img, nil
}
