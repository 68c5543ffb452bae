package generation

import "fmt"

const portraitWithTextPrompt = `Create a professional digital portrait artwork with the following specifications:

Art Style: Metallic silver/chrome illustration with dramatic lighting on a dark teal-to-black gradient background

Source: Use the provided image as the base for the portrait

Typography: Large, elegant 3D metallic Arabic calligraphy text displaying "%s" positioned prominently below and slightly overlapping the portrait. The Arabic text should have:
- Polished chrome/silver finish
- Smooth, flowing calligraphic style
- 3D depth and dimension
- Subtle highlights and shadows

Overall Composition:
- Portrait positioned in upper center
- Artistic, sophisticated aesthetic
- High contrast between subject and dark background
- Professional branding/personal brand style
- Cinematic lighting emphasizing facial features
- Monochromatic silver/chrome color scheme

Technical specifications: High resolution, smooth metallic textures, professional graphic design quality`

const portraitOnlyPrompt = `Create a professional digital portrait artwork with the following specifications:

Art Style: Metallic silver/chrome illustration with dramatic lighting on a dark teal-to-black gradient background

Source: Use the provided image as the base for the portrait

Overall Composition:
- Portrait positioned in center
- Artistic, sophisticated aesthetic
- High contrast between subject and dark background
- Professional branding/personal brand style
- Cinematic lighting emphasizing facial features
- Monochromatic silver/chrome color scheme
- NO TEXT OR TYPOGRAPHY - clean portrait only

Technical specifications: High resolution, smooth metallic textures, professional graphic design quality, no text overlays`

// BuildPrompt returns the instruction sent alongside the uploaded photo.
func BuildPrompt(arabicName string, includeText bool) string {
	if !includeText {
		return portraitOnlyPrompt
	}
	return fmt.Sprintf(portraitWithTextPrompt, arabicName)
}
