package config

import "sync"

var (
	ocrOnce   sync.Once
	ocrConfig *OCRConfig
)

type OCRConfig struct {
	Languages     []string
	TessdataDir   string
	MinConfidence float64
	Contrast      float64
}

func GetOCRConfig() *OCRConfig {
	ocrOnce.Do(func() {
		loadEnv()
		ocrConfig = &OCRConfig{
			Languages:     getEnvAsList("OCR_LANGUAGES", []string{"eng"}),
			TessdataDir:   getEnv("TESSDATA_PREFIX", ""),
			MinConfidence: float64(getEnvAsInt("OCR_MIN_CONFIDENCE", 60)),
			Contrast:      float64(getEnvAsInt("OCR_CONTRAST", 20)),
		}
	})
	return ocrConfig
}
