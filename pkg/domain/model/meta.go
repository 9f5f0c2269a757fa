package model

// UserMeta 中由分析流水线写入的键。
const (
	MetaKeyWidth         = "width"
	MetaKeyHeight        = "height"
	MetaKeyDominantColor = "dominant_color"
	MetaKeyBlurPreview   = "blur_preview" // 极小模糊占位图的 base64

	MetaKeyExifMake         = "exif_make"
	MetaKeyExifModel        = "exif_model"
	MetaKeyExifSoftware     = "exif_software"
	MetaKeyExifDateTime     = "exif_date_time"
	MetaKeyExifExposureTime = "exif_exposure_time"
	MetaKeyExifISOSpeed     = "exif_iso"
	MetaKeyExifFNumber      = "exif_f_number"
	MetaKeyExifFocalLength  = "exif_focal_length"

	MetaKeyMusicFormat = "music_format"
	MetaKeyMusicTitle  = "music_title"
	MetaKeyMusicAlbum  = "music_album"
	MetaKeyMusicArtist = "music_artist"
	MetaKeyMusicGenre  = "music_genre"
	MetaKeyMusicYear   = "music_year"

	MetaKeyMediaDuration = "media_duration"
	MetaKeyMediaBitRate  = "media_bit_rate"
)
